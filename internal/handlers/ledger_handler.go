package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// LedgerHandler exposes read-only ledger balance queries
type LedgerHandler struct {
	ledger *services.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// GetSystemBalance handles GET /api/v1/ledger/system/:type/balance
func (h *LedgerHandler) GetSystemBalance(c *gin.Context) {
	accountType := models.AccountType(strings.ToUpper(c.Param("type")))
	account, err := h.ledger.SystemAccount(c.Request.Context(), accountType)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Account not found",
			Message: err.Error(),
		})
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to compute balance",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		AccountID:    account.ID,
		AccountType:  string(account.AccountType),
		Currency:     account.Currency,
		BalanceCents: balance,
	})
}

// GetUserBalance handles GET /api/v1/ledger/users/:ownerId/balance
func (h *LedgerHandler) GetUserBalance(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Param("ownerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid owner ID",
			Message: err.Error(),
		})
		return
	}
	currency := c.DefaultQuery("currency", "USD")

	account, err := h.ledger.UserAccount(c.Request.Context(), ownerID, currency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to load account",
			Message: err.Error(),
		})
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to compute balance",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		AccountID:    account.ID,
		AccountType:  string(account.AccountType),
		Currency:     account.Currency,
		BalanceCents: balance,
	})
}
