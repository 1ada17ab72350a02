package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/domain/patient"
	"github.com/carefill/carefill/internal/domain/prescription"
	"github.com/carefill/carefill/internal/middleware"
	"github.com/carefill/carefill/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondServiceError maps domain errors onto HTTP statuses. Validation
// failures never reach persistence, so every client error here implies no
// mutation happened.
func respondServiceError(c *gin.Context, err error) {
	var transitionErr *fulfillment.TransitionError
	if errors.As(err, &transitionErr) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: transitionErr.Error(),
			Code:  "INVALID_TRANSITION",
		})
		return
	}

	switch {
	case errors.Is(err, fulfillment.ErrRequestNotFound),
		errors.Is(err, prescription.ErrPrescriptionNotFound),
		errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, fulfillment.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "DUPLICATE_REQUEST"})

	case errors.Is(err, fulfillment.ErrInvalidState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_STATE"})

	case errors.Is(err, fulfillment.ErrVersionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "VERSION_CONFLICT"})

	case errors.Is(err, fulfillment.ErrFeedbackRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "FEEDBACK_REQUIRED"})

	case errors.Is(err, fulfillment.ErrNoItems),
		errors.Is(err, fulfillment.ErrInvalidType),
		errors.Is(err, fulfillment.ErrProviderRequired),
		errors.Is(err, fulfillment.ErrNothingToApply),
		errors.Is(err, prescription.ErrNoComponents),
		errors.Is(err, prescription.ErrProviderMissing),
		errors.Is(err, prescription.ErrInvalidExpiry),
		errors.Is(err, patient.ErrPatientInactive):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "account is inactive"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

// callerClaims pulls the authenticated identity set by the auth middleware.
func callerClaims(c *gin.Context) (*domain.Claims, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return claims, true
}
