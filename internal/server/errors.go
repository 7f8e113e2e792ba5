package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/waitlist/internal/billing/domain"
	feedbackdomain "github.com/smallbiznis/waitlist/internal/feedback/domain"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		message := validationErrorMessage(code)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: message,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: message,
				},
			},
		}
	}

	switch {
	case errors.Is(err, projectdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "Admin secret required",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, projectdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "Invalid admin secret",
		}
	case errors.Is(err, signupdomain.ErrQuotaExceeded):
		return http.StatusForbidden, errorPayload{
			Type:    "quota_exceeded",
			Message: signupdomain.QuotaExceededMessage,
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, billingdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, billingdomain.ErrProviderRequest):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "payment provider request failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client saw.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidEmail),
		errors.Is(err, projectdomain.ErrInvalidName),
		errors.Is(err, projectdomain.ErrInvalidEmail),
		errors.Is(err, feedbackdomain.ErrMessageRequired),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, billingdomain.ErrPriceRequired),
		errors.Is(err, billingdomain.ErrUnknownPrice),
		errors.Is(err, billingdomain.ErrCustomerRequired),
		errors.Is(err, billingdomain.ErrInvalidSignature),
		errors.Is(err, billingdomain.ErrSignatureTooOld),
		errors.Is(err, billingdomain.ErrInvalidPayload),
		errors.Is(err, billingdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, signupdomain.ErrProjectNotFound),
		errors.Is(err, signupdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, signupdomain.ErrProjectNotFound):
		return "Project not found"
	default:
		return "not found"
	}
}

// validationErrorCode returns the sentinel text of the first known error in
// the chain, so wrapped errors keep their public code.
func validationErrorCode(err error) string {
	for _, known := range []error{
		ErrInvalidRequest,
		signupdomain.ErrInvalidEmail,
		projectdomain.ErrInvalidName,
		projectdomain.ErrInvalidEmail,
		feedbackdomain.ErrMessageRequired,
		pagination.ErrInvalidPageToken,
		billingdomain.ErrPriceRequired,
		billingdomain.ErrUnknownPrice,
		billingdomain.ErrCustomerRequired,
		billingdomain.ErrSignatureTooOld,
		billingdomain.ErrInvalidSignature,
		billingdomain.ErrInvalidPayload,
		billingdomain.ErrInvalidEvent,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasSuffix(code, "_required"):
		return strings.TrimSuffix(code, "_required")
	case strings.HasSuffix(code, "_unknown"):
		return strings.TrimSuffix(code, "_unknown")
	default:
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_email":
		return "Invalid email address"
	case "invalid_name":
		return "Name and admin email are required"
	case "feedback_required":
		return "Feedback is required"
	case "invalid_page_token":
		return "Invalid page token"
	case "price_id_required":
		return "Price ID is required"
	case "price_id_unknown":
		return "Unknown price ID"
	case "customer_id_required":
		return "Customer ID is required"
	case "invalid_signature", "signature_timestamp_outside_tolerance":
		return "Invalid signature"
	default:
		return "invalid value"
	}
}
