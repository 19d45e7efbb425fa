package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/firmbill/internal/billing/domain"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	invoicingdomain "github.com/smallbiznis/firmbill/internal/invoicing/domain"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, usagedomain.ErrInvalidFirm),
		errors.Is(err, usagedomain.ErrInvalidPeriod),
		errors.Is(err, usagedomain.ErrInvalidCategory),
		errors.Is(err, usagedomain.ErrInvalidDelta),
		errors.Is(err, usagedomain.ErrInvalidUsage),
		errors.Is(err, splitdomain.ErrInvalidFirm),
		errors.Is(err, splitdomain.ErrInvalidCategory),
		errors.Is(err, splitdomain.ErrInvalidAmount),
		errors.Is(err, splitdomain.ErrInvalidSplitConfig),
		errors.Is(err, chargedomain.ErrInvalidFirm),
		errors.Is(err, chargedomain.ErrInvalidChargeType),
		errors.Is(err, chargedomain.ErrInvalidQuantity),
		errors.Is(err, chargedomain.ErrInvalidUnitPrice),
		errors.Is(err, chargedomain.ErrInvalidPeriod),
		errors.Is(err, chargedomain.ErrInvalidApprovalType),
		errors.Is(err, invoicingdomain.ErrInvalidFirm),
		errors.Is(err, invoicingdomain.ErrInvalidPeriod),
		errors.Is(err, billingdomain.ErrInvalidFirm),
		errors.Is(err, entitlementdomain.ErrInvalidFirm),
		errors.Is(err, billingperiod.ErrInvalidFrequency):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, chargedomain.ErrChargeNotFound),
		errors.Is(err, chargedomain.ErrRuleNotFound),
		errors.Is(err, splitdomain.ErrConfigNotFound),
		errors.Is(err, invoicingdomain.ErrInvoiceNotFound),
		errors.Is(err, entitlementdomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, chargedomain.ErrInvalidTransition),
		errors.Is(err, chargedomain.ErrConcurrentThresholdViolated),
		errors.Is(err, invoicingdomain.ErrInvalidTransition),
		errors.Is(err, invoicingdomain.ErrInvoiceExists),
		errors.Is(err, invoicingdomain.ErrNoApprovedCharges):
		return true
	default:
		return false
	}
}
