package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/services"
)

type RouterConfig struct {
	Intake  *services.IntakeService
	Courses *services.CourseService
	Members *services.MemberService
	Exports *services.ExportService
	Store   Store
	Log     *logger.Logger
}

type Router struct {
	intake  *services.IntakeService
	courses *services.CourseService
	members *services.MemberService
	exports *services.ExportService
	store   Store
	log     *logger.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		intake:  cfg.Intake,
		courses: cfg.Courses,
		members: cfg.Members,
		exports: cfg.Exports,
		store:   cfg.Store,
		log:     log.With("component", "api"),
	}
}

// Register mounts every admin route on g. Authentication is applied by the caller.
func (rt *Router) Register(g *gin.RouterGroup) {
	// intake forms
	g.GET("/forms", rt.handleFormTypes)
	g.GET("/forms/:formType/schema", rt.handleFormSchema)
	g.GET("/forms/:formType/export.csv", rt.handleIntakeExport(services.FormatCSV))
	g.GET("/forms/:formType/export.png", rt.handleIntakeExport(services.FormatPNG))
	g.GET("/clients/:clientId/forms", rt.handleClientForms)
	g.POST("/clients/:clientId/forms", rt.handleSubmitForm)
	g.GET("/clients/:clientId/forms/:formType", rt.handleClientForm)
	g.GET("/clients/:clientId/forms/:formType/edit", rt.handleEditForm)
	g.GET("/clients/:clientId/forms/:formType/summary", rt.handleFormSummary)

	// course tree
	g.GET("/courses", rt.handleListCourses)
	g.POST("/courses", rt.handleCreateCourse)
	g.GET("/courses/:courseId", rt.handleGetCourse)
	g.PUT("/courses/:courseId", rt.handleUpdateCourse)
	g.GET("/courses/:courseId/audit", rt.handleCourseAudit)
	g.GET("/courses/:courseId/outline", rt.handleCourseOutline)
	g.POST("/courses/:courseId/modules", rt.handleAddModule)
	g.PUT("/courses/:courseId/modules/order", rt.handleReorderModules)
	g.DELETE("/modules/:moduleId", rt.handleDeleteModule)
	g.POST("/modules/:moduleId/sections", rt.handleAddSection)
	g.DELETE("/sections/:sectionId", rt.handleDeleteSection)
	g.POST("/sections/:sectionId/items", rt.handleAddItem)
	g.DELETE("/items/:itemId", rt.handleDeleteItem)

	// members
	g.GET("/members", rt.handleListMembers)
	g.POST("/members", rt.handleCreateMember)
	g.GET("/members/expired", rt.handleExpiredMembers)
	g.POST("/members/expire", rt.handleExpireMembers)
	g.POST("/members/reminders", rt.handleReminders)
	g.GET("/members/export.csv", rt.handleMemberExport(services.FormatCSV))
	g.GET("/members/export.png", rt.handleMemberExport(services.FormatPNG))

	g.GET("/audit", rt.handleAuditLog)
}

// GET /api/audit?limit=50
func (rt *Router) handleAuditLog(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid", services.NewInvalidError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := rt.store.ListAudit(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (rt *Router) sendExport(c *gin.Context, res *services.ExportResult) {
	c.Header("Content-Disposition", "attachment; filename="+res.Filename)
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
