package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"go.uber.org/zap"
)

type CreateProjectRequest struct {
	Name         string `json:"name"`
	AdminEmail   string `json:"adminEmail"`
	Description  string `json:"description"`
	PrimaryColor string `json:"primaryColor"`
	LogoURL      string `json:"logoUrl"`
	Headline     string `json:"headline"`
	Subheadline  string `json:"subheadline"`
	ButtonText   string `json:"buttonText"`
}

// CreateProject returns the admin secret once; only its hash is stored.
func (s *Server) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.projectSvc.Create(c.Request.Context(), projectdomain.CreateProjectRequest{
		Name:         req.Name,
		OwnerEmail:   req.AdminEmail,
		Description:  req.Description,
		PrimaryColor: req.PrimaryColor,
		LogoURL:      req.LogoURL,
		Headline:     req.Headline,
		Subheadline:  req.Subheadline,
		ButtonText:   req.ButtonText,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withProject(c, resp.Project.ID.String())
	s.recordProjectCreated(c, &resp.Project)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) recordProjectCreated(c *gin.Context, project *projectdomain.Project) {
	if s.auditSvc == nil {
		return
	}
	projectID := project.ID
	err := s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
		ProjectID:  &projectID,
		ActorType:  auditdomain.ActorTypePublic,
		Action:     auditdomain.ActionProjectCreated,
		TargetType: auditdomain.TargetProject,
		TargetID:   project.ID.String(),
		Metadata: map[string]any{
			"slug":        project.Slug,
			"owner_email": project.OwnerEmail,
		},
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.String("action", auditdomain.ActionProjectCreated), zap.Error(err))
	}
}

func (s *Server) GetProject(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	project, err := s.projectSvc.GetPublic(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withProject(c, project.ID.String())

	c.JSON(http.StatusOK, gin.H{"project": project})
}
