package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/proktora/proktora-backend/internal/middleware"
	"github.com/proktora/proktora-backend/internal/response"
	"github.com/proktora/proktora-backend/internal/service"
)

// CreditHandler exposes the user's credit balance and usage history.
type CreditHandler struct {
	creditService *service.CreditService
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(creditService *service.CreditService) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

// GetCredits godoc
// GET /api/v1/exam/credits?page=1&per_page=20
func (h *CreditHandler) GetCredits(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	overview, total, err := h.creditService.GetOverview(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, overview, response.NewPagination(page, perPage, total))
}
