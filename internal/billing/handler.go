package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"proposal-backend/internal/shared/server/middleware"
	"proposal-backend/internal/shared/server/respond"
)

// Handler exposes ledger endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches billing routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/billing/balance", h.getBalance)
	rg.GET("/billing/transactions", h.listTransactions)
	rg.POST("/billing/credits", h.addCredit)
}

func (h *Handler) getBalance(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	balance, err := h.Svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch balance", nil)
		return
	}
	respond.OK(c, balance)
}

func (h *Handler) listTransactions(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	transactions, err := h.Svc.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list transactions", nil)
		return
	}
	respond.OK(c, gin.H{"transactions": transactions})
}

type addCreditRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ReferenceID string  `json:"referenceId"`
}

func (h *Handler) addCredit(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req addCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	if err := h.Svc.AddCredit(c.Request.Context(), userID, req.Amount, req.Description, req.ReferenceID); err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			respond.Error(c, http.StatusBadRequest, "validation_error", "amount must be positive", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to add credit", nil)
		}
		return
	}

	balance, err := h.Svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch balance", nil)
		return
	}
	respond.OK(c, balance)
}
