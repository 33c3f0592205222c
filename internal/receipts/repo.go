package receipts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
)

// ScanRepository is the persistence surface for receipt scans.
type ScanRepository interface {
	Create(ctx context.Context, scan *models.ReceiptScan) error
	GetByID(ctx context.Context, billID, scanID uuid.UUID) (*models.ReceiptScan, error)
	MarkRunning(ctx context.Context, scanID uuid.UUID) error
	MarkDone(ctx context.Context, scanID uuid.UUID, itemCount int) error
	MarkFailed(ctx context.Context, scanID uuid.UUID, reason string) error
}

// Repository persists receipt scans.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a receipt scan repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new scan row.
func (r *Repository) Create(ctx context.Context, scan *models.ReceiptScan) error {
	if scan == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Create(scan).Error
}

// GetByID loads one scan scoped to its bill.
func (r *Repository) GetByID(ctx context.Context, billID, scanID uuid.UUID) (*models.ReceiptScan, error) {
	var scan models.ReceiptScan
	err := r.db.WithContext(ctx).
		Where("bill_id = ? AND id = ?", billID, scanID).
		First(&scan).
		Error
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// MarkRunning transitions a pending scan to running. Re-delivery of an
// already-terminal scan is left alone so a duplicate job cannot resurrect a
// finished one.
func (r *Repository) MarkRunning(ctx context.Context, scanID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ReceiptScan{}).
		Where("id = ? AND status = ?", scanID, enums.ScanStatusPending).
		Update("status", enums.ScanStatusRunning).
		Error
}

// MarkDone records a successful extraction.
func (r *Repository) MarkDone(ctx context.Context, scanID uuid.UUID, itemCount int) error {
	return r.db.WithContext(ctx).
		Model(&models.ReceiptScan{}).
		Where("id = ?", scanID).
		Updates(map[string]any{
			"status":     enums.ScanStatusDone,
			"item_count": itemCount,
			"error":      nil,
		}).
		Error
}

// MarkFailed records a failed extraction with its reason.
func (r *Repository) MarkFailed(ctx context.Context, scanID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReceiptScan{}).
		Where("id = ?", scanID).
		Updates(map[string]any{
			"status": enums.ScanStatusFailed,
			"error":  reason,
		}).
		Error
}
