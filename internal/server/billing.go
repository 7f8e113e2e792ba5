package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/waitlist/internal/billing/domain"
)

const maxWebhookBytes = 1 << 20

type CheckoutRequest struct {
	PriceID   string `json:"priceId"`
	Email     string `json:"email"`
	ProjectID string `json:"projectId"`
}

type PortalRequest struct {
	CustomerID string `json:"customerId"`
}

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, s.billingSvc.Plans())
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	withProject(c, req.ProjectID)

	session, err := s.billingSvc.Checkout(c.Request.Context(), billingdomain.CheckoutRequest{
		PriceID:   req.PriceID,
		Email:     req.Email,
		ProjectID: req.ProjectID,
		Origin:    requestOrigin(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": session.ID, "url": session.URL})
}

func (s *Server) CreateCustomerPortal(c *gin.Context) {
	var req PortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.billingSvc.Portal(c.Request.Context(), billingdomain.PortalRequest{
		CustomerID: req.CustomerID,
		Origin:     requestOrigin(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": session.URL})
}

// HandleStripeWebhook needs the raw body; the signature covers exact bytes.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.billingSvc.HandleWebhook(c.Request.Context(), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func requestOrigin(c *gin.Context) string {
	return strings.TrimRight(strings.TrimSpace(c.GetHeader("Origin")), "/")
}
