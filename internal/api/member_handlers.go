package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

// GET /api/members?status=active|expired|cancelled
func (rt *Router) handleListMembers(c *gin.Context) {
	list, err := rt.members.ListMembers(c.Request.Context(), models.MemberStatus(c.Query("status")))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": list})
}

// POST /api/members
func (rt *Router) handleCreateMember(c *gin.Context) {
	var in services.MemberInput
	if !bindJSON(c, &in) {
		return
	}
	m, err := rt.members.CreateMember(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GET /api/members/expired
func (rt *Router) handleExpiredMembers(c *gin.Context) {
	list, err := rt.members.ListExpired(c.Request.Context())
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": list})
}

// POST /api/members/expire
func (rt *Router) handleExpireMembers(c *gin.Context) {
	n, err := rt.members.ExpireLapsed(c.Request.Context())
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// POST /api/members/reminders
// { withinDays: 7 }
func (rt *Router) handleReminders(c *gin.Context) {
	var req struct {
		WithinDays int `json:"withinDays"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := rt.members.SendExpiryReminders(c.Request.Context(), time.Duration(req.WithinDays)*24*time.Hour)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/members/export.csv?status=expired
func (rt *Router) handleMemberExport(format string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := rt.exports.ExportMembers(c.Request.Context(), models.MemberStatus(c.Query("status")), format)
		if err != nil {
			respondServiceError(c, rt.log, err)
			return
		}
		rt.sendExport(c, res)
	}
}
