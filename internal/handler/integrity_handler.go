package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/middleware"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/response"
	"github.com/proktora/proktora-backend/internal/service"
	"github.com/proktora/proktora-backend/internal/validator"
)

// IntegrityHandler handles proctoring violation reports.
type IntegrityHandler struct {
	integrityService *service.IntegrityService
}

// NewIntegrityHandler creates a new IntegrityHandler.
func NewIntegrityHandler(integrityService *service.IntegrityService) *IntegrityHandler {
	return &IntegrityHandler{integrityService: integrityService}
}

// ReportViolation godoc
// POST /api/v1/exam/attempts/:attempt_id/violations
// Records a detected violation and returns the updated tally. Responds 202:
// the report is accepted and counted, but the attempt may already be
// terminated by the time the client reads the body.
func (h *IntegrityHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.integrityService.ReportViolation(c.Request.Context(), claims.UserID, attemptID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrUnknownViolationKind):
			response.Fail(c, http.StatusBadRequest, response.ErrUnknownViolationKind)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusAccepted, outcome)
}

// ListViolations godoc
// GET /api/v1/exam/attempts/:attempt_id/violations
func (h *IntegrityHandler) ListViolations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.integrityService.ListViolations(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}
