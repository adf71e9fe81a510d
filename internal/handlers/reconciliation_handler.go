package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// ReconciliationReader lists reconciliation runs and findings
type ReconciliationReader interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*models.ReconciliationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.ReconciliationRun, error)
	ListDiscrepanciesForRun(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationDiscrepancy, error)
	ListUnreviewed(ctx context.Context, limit int) ([]models.ReconciliationDiscrepancy, error)
}

// ReconciliationHandler handles reconciliation HTTP requests
type ReconciliationHandler struct {
	service *services.ReconciliationService
	reader  ReconciliationReader
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(service *services.ReconciliationService, reader ReconciliationReader) *ReconciliationHandler {
	return &ReconciliationHandler{service: service, reader: reader}
}

// TriggerRun handles POST /api/v1/reconciliation/runs
func (h *ReconciliationHandler) TriggerRun(c *gin.Context) {
	run, err := h.service.RunReconciliation(c.Request.Context())
	if err != nil {
		var busy *locks.AcquisitionError
		if errors.As(err, &busy) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Reconciliation already running",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Reconciliation run failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /api/v1/reconciliation/runs
func (h *ReconciliationHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.reader.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to list runs",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun handles GET /api/v1/reconciliation/runs/:id
func (h *ReconciliationHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid run ID",
			Message: err.Error(),
		})
		return
	}

	run, err := h.reader.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Run not found",
			Message: err.Error(),
		})
		return
	}

	discrepancies, err := h.reader.ListDiscrepanciesForRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to list discrepancies",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":           run,
		"discrepancies": discrepancies,
	})
}

// ListUnreviewed handles GET /api/v1/reconciliation/discrepancies
func (h *ReconciliationHandler) ListUnreviewed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	discrepancies, err := h.reader.ListUnreviewed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to list discrepancies",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, discrepancies)
}
