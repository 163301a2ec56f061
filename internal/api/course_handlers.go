package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/soaringjerry/coachdesk/internal/services"
)

// GET /api/courses
func (rt *Router) handleListCourses(c *gin.Context) {
	list, err := rt.courses.ListCourses(c.Request.Context())
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": list})
}

// POST /api/courses
func (rt *Router) handleCreateCourse(c *gin.Context) {
	var in services.CourseInput
	if !bindJSON(c, &in) {
		return
	}
	course, err := rt.courses.CreateCourse(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// GET /api/courses/:courseId returns the full tree.
func (rt *Router) handleGetCourse(c *gin.Context) {
	course, err := rt.courses.Preview(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// PUT /api/courses/:courseId
func (rt *Router) handleUpdateCourse(c *gin.Context) {
	var in services.CourseInput
	if !bindJSON(c, &in) {
		return
	}
	course, err := rt.courses.UpdateCourse(c.Request.Context(), c.Param("courseId"), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// GET /api/courses/:courseId/audit
func (rt *Router) handleCourseAudit(c *gin.Context) {
	view, err := rt.courses.Audit(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GET /api/courses/:courseId/outline?expand=all
// GET /api/courses/:courseId/outline?expand=mod1,sec4
func (rt *Router) handleCourseOutline(c *gin.Context) {
	expand := strings.TrimSpace(c.Query("expand"))
	all := expand == "all"
	var ids []string
	if !all && expand != "" {
		for _, id := range strings.Split(expand, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	rows, err := rt.courses.Outline(c.Request.Context(), c.Param("courseId"), all, ids)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// POST /api/courses/:courseId/modules
func (rt *Router) handleAddModule(c *gin.Context) {
	var in services.ModuleInput
	if !bindJSON(c, &in) {
		return
	}
	m, err := rt.courses.AddModule(c.Request.Context(), c.Param("courseId"), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// PUT /api/courses/:courseId/modules/order
// { order: [moduleId, ...] }
func (rt *Router) handleReorderModules(c *gin.Context) {
	var req struct {
		Order []string `json:"order"`
	}
	if !bindJSON(c, &req) {
		return
	}
	n, err := rt.courses.ReorderModules(c.Request.Context(), c.Param("courseId"), req.Order)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": n})
}

// DELETE /api/modules/:moduleId
func (rt *Router) handleDeleteModule(c *gin.Context) {
	if err := rt.courses.DeleteModule(c.Request.Context(), c.Param("moduleId")); err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/modules/:moduleId/sections
func (rt *Router) handleAddSection(c *gin.Context) {
	var in services.SectionInput
	if !bindJSON(c, &in) {
		return
	}
	sec, err := rt.courses.AddSection(c.Request.Context(), c.Param("moduleId"), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusCreated, sec)
}

// DELETE /api/sections/:sectionId
func (rt *Router) handleDeleteSection(c *gin.Context) {
	if err := rt.courses.DeleteSection(c.Request.Context(), c.Param("sectionId")); err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/sections/:sectionId/items
func (rt *Router) handleAddItem(c *gin.Context) {
	var in services.ItemInput
	if !bindJSON(c, &in) {
		return
	}
	it, err := rt.courses.AddItem(c.Request.Context(), c.Param("sectionId"), in)
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// DELETE /api/items/:itemId
func (rt *Router) handleDeleteItem(c *gin.Context) {
	if err := rt.courses.DeleteItem(c.Request.Context(), c.Param("itemId")); err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
