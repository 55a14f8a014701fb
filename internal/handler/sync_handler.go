package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proktora/proktora-backend/internal/middleware"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/response"
	"github.com/proktora/proktora-backend/internal/service"
	"github.com/proktora/proktora-backend/internal/validator"
)

// SyncHandler handles offline replay batches.
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// ApplyBatch godoc
// POST /api/v1/exam/sync
// Replays a queue of offline actions. The batch itself always succeeds with
// 200; each item carries its own status so the client knows exactly which
// entries are safe to drop from its durable queue.
func (h *SyncHandler) ApplyBatch(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SyncBatchRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	results := h.syncService.ApplyBatch(c.Request.Context(), claims.UserID, req.Items)
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
