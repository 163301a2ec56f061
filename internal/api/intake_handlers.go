package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soaringjerry/coachdesk/internal/services"
)

// bindJSON decodes the request body and answers 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, http.StatusBadRequest, string(services.ErrorInvalid), err)
		return false
	}
	return true
}

// GET /api/forms
func (rt *Router) handleFormTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"forms": rt.intake.FormTypes()})
}

// GET /api/forms/:formType/schema
func (rt *Router) handleFormSchema(c *gin.Context) {
	schema, err := rt.intake.Schema(c.Param("formType"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

// GET /api/clients/:clientId/forms
func (rt *Router) handleClientForms(c *gin.Context) {
	list, err := rt.intake.List(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": list})
}

// GET /api/clients/:clientId/forms/:formType
// Answers null when the client has not submitted this form yet.
func (rt *Router) handleClientForm(c *gin.Context) {
	r, err := rt.intake.Get(c.Request.Context(), c.Param("clientId"), c.Param("formType"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GET /api/clients/:clientId/forms/:formType/edit
func (rt *Router) handleEditForm(c *gin.Context) {
	view, err := rt.intake.LoadForEdit(c.Request.Context(), c.Param("clientId"), c.Param("formType"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GET /api/clients/:clientId/forms/:formType/summary
func (rt *Router) handleFormSummary(c *gin.Context) {
	view, err := rt.intake.Summary(c.Request.Context(), c.Param("clientId"), c.Param("formType"))
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /api/clients/:clientId/forms
// { formType: string, responses: {field: value} }
func (rt *Router) handleSubmitForm(c *gin.Context) {
	var req struct {
		FormType  string                     `json:"formType"`
		Responses map[string]json.RawMessage `json:"responses"`
	}
	if !bindJSON(c, &req) {
		return
	}
	saved, err := rt.intake.Submit(c.Request.Context(), services.SubmitInput{
		ClientID:  c.Param("clientId"),
		FormType:  req.FormType,
		Responses: req.Responses,
	})
	if err != nil {
		respondServiceError(c, rt.log, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GET /api/forms/:formType/export.csv|png
func (rt *Router) handleIntakeExport(format string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := rt.exports.ExportIntake(c.Request.Context(), c.Param("formType"), format)
		if err != nil {
			respondServiceError(c, rt.log, err)
			return
		}
		rt.sendExport(c, res)
	}
}
