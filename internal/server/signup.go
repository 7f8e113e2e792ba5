package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
)

type SignupRequest struct {
	Email      string `json:"email"`
	ProjectID  string `json:"projectId"`
	ReferredBy string `json:"referredBy"`
}

// Signup answers 200 for both a new and a repeated email; alreadySignedUp
// tells them apart.
func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	withProject(c, req.ProjectID)

	result, err := s.signupSvc.Signup(c.Request.Context(), signupdomain.Request{
		Email:        req.Email,
		ProjectID:    req.ProjectID,
		ReferralCode: req.ReferredBy,
		UserAgent:    c.Request.UserAgent(),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
