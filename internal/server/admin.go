package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) GetAdminView(c *gin.Context) {
	projectID := c.Param("projectId")
	withProject(c, projectID)

	view, err := s.reportingSvc.AdminView(c.Request.Context(), projectID, adminSecret(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListSignups(c *gin.Context) {
	projectID := c.Param("projectId")
	withProject(c, projectID)

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reportingSvc.ListSignups(c.Request.Context(), projectID, adminSecret(c), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ExportSignups(c *gin.Context) {
	projectID := c.Param("projectId")
	withProject(c, projectID)

	export, err := s.reportingSvc.ExportCSV(c.Request.Context(), projectID, adminSecret(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", export.Content)
}

// GetStats never fails the landing page; counters fall back to zero.
func (s *Server) GetStats(c *gin.Context) {
	stats, err := s.reportingSvc.GlobalStats(c.Request.Context())
	if err != nil {
		s.log.Warn("global stats unavailable", zap.Error(err))
	}

	c.Header("Cache-Control", "public, max-age=60")
	c.JSON(http.StatusOK, stats)
}
