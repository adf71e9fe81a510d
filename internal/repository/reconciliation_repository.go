package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// ReconciliationRepository handles reconciliation run and discrepancy
// persistence
type ReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository creates a new reconciliation repository
func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// CreateRun creates a new reconciliation run record
func (r *ReconciliationRepository) CreateRun(ctx context.Context, run *models.ReconciliationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// UpdateRun saves a reconciliation run
func (r *ReconciliationRepository) UpdateRun(ctx context.Context, run *models.ReconciliationRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetRun gets a run by id
func (r *ReconciliationRepository) GetRun(ctx context.Context, runID uuid.UUID) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists recent runs, newest first
func (r *ReconciliationRepository) ListRuns(ctx context.Context, limit int) ([]models.ReconciliationRun, error) {
	var runs []models.ReconciliationRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateDiscrepancy creates a discrepancy finding
func (r *ReconciliationRepository) CreateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// UpdateDiscrepancy saves a discrepancy
func (r *ReconciliationRepository) UpdateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) error {
	return r.db.WithContext(ctx).Save(d).Error
}

// ListDiscrepanciesForRun lists findings for a run
func (r *ReconciliationRepository) ListDiscrepanciesForRun(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationDiscrepancy, error) {
	var items []models.ReconciliationDiscrepancy
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListUnreviewed lists flagged findings awaiting review
func (r *ReconciliationRepository) ListUnreviewed(ctx context.Context, limit int) ([]models.ReconciliationDiscrepancy, error) {
	var items []models.ReconciliationDiscrepancy
	err := r.db.WithContext(ctx).
		Where("resolution = ? AND reviewed = false", models.ResolutionFlaggedForReview).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
