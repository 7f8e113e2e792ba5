package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	feedbackdomain "github.com/smallbiznis/waitlist/internal/feedback/domain"
)

func (s *Server) SubmitFeedback(c *gin.Context) {
	var req feedbackdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.feedbackSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
