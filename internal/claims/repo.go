package claims

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/pkg/db/models"
)

// SelectionRepository is the persistence surface the service works against.
type SelectionRepository interface {
	Create(ctx context.Context, selection *models.Selection) error
	ReplaceForSession(ctx context.Context, selection *models.Selection) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]models.Selection, error)
	GetByID(ctx context.Context, billID, selectionID uuid.UUID) (*models.Selection, error)
	SetPaid(ctx context.Context, billID, selectionID uuid.UUID, paid bool) error
	AnyReferencingItem(ctx context.Context, billID, itemID uuid.UUID) (bool, error)
}

// Repository persists durable selections.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a selections repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new selection row.
func (r *Repository) Create(ctx context.Context, selection *models.Selection) error {
	if selection == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Create(selection).Error
}

// ReplaceForSession stores the session's selection for the bill, replacing
// any previous one atomically. Resubmitting is how a guest revises: the old
// row goes away entirely rather than being merged.
func (r *Repository) ReplaceForSession(ctx context.Context, selection *models.Selection) error {
	if selection == nil || selection.SessionID == nil || *selection.SessionID == "" {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("bill_id = ? AND session_id = ?", selection.BillID, *selection.SessionID).
			Delete(&models.Selection{}).
			Error; err != nil {
			return err
		}
		return tx.Create(selection).Error
	})
}

// ListByBill returns every selection on the bill, oldest first.
func (r *Repository) ListByBill(ctx context.Context, billID uuid.UUID) ([]models.Selection, error) {
	var selections []models.Selection
	err := r.db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&selections).
		Error
	if err != nil {
		return nil, err
	}
	return selections, nil
}

// GetByID loads one selection scoped to its bill.
func (r *Repository) GetByID(ctx context.Context, billID, selectionID uuid.UUID) (*models.Selection, error) {
	var selection models.Selection
	err := r.db.WithContext(ctx).
		Where("bill_id = ? AND id = ?", billID, selectionID).
		First(&selection).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &selection, nil
}

// SetPaid flips the payer-confirmed flag on a selection.
func (r *Repository) SetPaid(ctx context.Context, billID, selectionID uuid.UUID, paid bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Selection{}).
		Where("bill_id = ? AND id = ?", billID, selectionID).
		Update("paid", paid)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AnyReferencingItem reports whether any selection on the bill claims the
// item. The items column is a JSON map keyed by item id; scanning in Go keeps
// the check portable across Postgres and the sqlite test harness.
func (r *Repository) AnyReferencingItem(ctx context.Context, billID, itemID uuid.UUID) (bool, error) {
	selections, err := r.ListByBill(ctx, billID)
	if err != nil {
		return false, err
	}
	key := itemID.String()
	for _, selection := range selections {
		if qty, ok := selection.Items[key]; ok && qty > 0 {
			return true, nil
		}
	}
	return false, nil
}
