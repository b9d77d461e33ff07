package httpapi

import (
	"net/http"

	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Dashboard returns the dealership's stats and a page of call logs, optionally
// filtered by ?department=.
func (h *Handlers) Dashboard(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	dept, ok := departmentParam(c)
	if !ok {
		return
	}
	out, err := h.Reporting.Dashboard(c.Request.Context(), s, reporting.DashboardRequest{
		Department: dept,
		Page:       pageParam(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) DashboardSummary(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	out, err := h.Reporting.Summary(c.Request.Context(), s)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) ListCallLogs(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	dept, ok := departmentParam(c)
	if !ok {
		return
	}
	page, err := h.CallLogs.List(c.Request.Context(), s, calllogs.ListFilter{Department: dept, Page: pageParam(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_logs": page, "department": dept})
}

// GetCallLog answers 404 for ids owned by another dealership.
func (h *Handlers) GetCallLog(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	row, err := h.CallLogs.Get(c.Request.Context(), s, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}
