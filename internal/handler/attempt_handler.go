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

// AttemptHandler handles attempt lifecycle endpoints: admission, answer
// writes, offline bundle, submission.
type AttemptHandler struct {
	admissionService *service.AdmissionService
	attemptService   *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(admissionService *service.AdmissionService, attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{
		admissionService: admissionService,
		attemptService:   attemptService,
	}
}

// StartAttempt godoc
// POST /api/v1/exam/packages/:package_id/attempts
// Admits the user into a new timed attempt, debiting one credit unit when
// the package is paid and no direct access is held.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	packageID, err := uuid.Parse(c.Param("package_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.admissionService.StartAttempt(c.Request.Context(), claims.UserID, packageID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPackageNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAlreadyInProgress):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyInProgress)
		case errors.Is(err, service.ErrMaxAttemptsReached):
			response.Fail(c, http.StatusConflict, response.ErrMaxAttemptsReached)
		case errors.Is(err, service.ErrInsufficientCredits):
			response.Fail(c, http.StatusPaymentRequired, response.ErrInsufficientCredits)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// GetActiveAttempt godoc
// GET /api/v1/exam/attempts/active
// Returns the user's current IN_PROGRESS attempt, or null. Lets a reloaded
// or second-device client resume instead of double-starting.
func (h *AttemptHandler) GetActiveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempt, err := h.attemptService.GetActive(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetOfflineBundle godoc
// GET /api/v1/exam/attempts/:attempt_id/offline-bundle
// Returns questions, answer slots, and the authoritative deadline, enough
// to render and answer the exam with zero further network access. A
// network-intercepting client caches the last good copy of this route.
func (h *AttemptHandler) GetOfflineBundle(c *gin.Context) {
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

	bundle, err := h.attemptService.GetOfflineBundle(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptLocked):
			response.Fail(c, http.StatusConflict, response.ErrAttemptLocked)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, bundle)
}

// SaveAnswer godoc
// PUT /api/v1/exam/attempts/:attempt_id/answers/:question_id
// Live answer write into the pre-allocated slot. Rejected definitively once
// the server deadline has passed.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
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
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), claims.UserID, attemptID, questionID, req); err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptLocked):
			response.Fail(c, http.StatusConflict, response.ErrAttemptLocked)
		case errors.Is(err, service.ErrQuestionNotInPackage):
			response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInExam)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitAttempt godoc
// POST /api/v1/exam/attempts/:attempt_id/submit
// Explicitly finalizes the attempt. Idempotent: submitting an already
// terminal attempt returns its current state.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
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

	attempt, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
