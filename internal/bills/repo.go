package bills

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/pkg/db/models"
)

// BillRepository is the persistence surface the service works against.
type BillRepository interface {
	Create(ctx context.Context, bill *models.Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	GetByOwnerToken(ctx context.Context, token string) (*models.Bill, error)
	GetByShareToken(ctx context.Context, token string) (*models.Bill, error)
	Update(ctx context.Context, bill *models.Bill) error
	AddItems(ctx context.Context, items []models.BillItem) error
	UpdateItem(ctx context.Context, item *models.BillItem) error
	DeleteItem(ctx context.Context, billID, itemID uuid.UUID) error
	GetItem(ctx context.Context, billID, itemID uuid.UUID) (*models.BillItem, error)
	NextItemPosition(ctx context.Context, billID uuid.UUID) (int, error)
}

// Repository persists bills and their items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a bill repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the bill together with its initial items.
func (r *Repository) Create(ctx context.Context, bill *models.Bill) error {
	if bill == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Create(bill).Error
}

// GetByID loads a bill with its items, ordered for display.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return r.loadBill(ctx, "id = ?", id)
}

// GetByOwnerToken loads the bill behind a payer link.
func (r *Repository) GetByOwnerToken(ctx context.Context, token string) (*models.Bill, error) {
	return r.loadBill(ctx, "owner_token = ?", token)
}

// GetByShareToken loads the bill behind a guest link.
func (r *Repository) GetByShareToken(ctx context.Context, token string) (*models.Bill, error) {
	return r.loadBill(ctx, "share_token = ?", token)
}

// Update stores the bill's mutable columns. Items are managed through the
// item methods, not through the association.
func (r *Repository) Update(ctx context.Context, bill *models.Bill) error {
	if bill == nil || bill.ID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Model(&models.Bill{}).
		Where("id = ?", bill.ID).
		Updates(map[string]any{
			"title":         bill.Title,
			"currency":      bill.Currency,
			"payer_name":    bill.PayerName,
			"paypal_handle": bill.PaypalHandle,
		}).
		Error
}

// AddItems inserts the given items in one statement.
func (r *Repository) AddItems(ctx context.Context, items []models.BillItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpdateItem stores an item's mutable columns.
func (r *Repository) UpdateItem(ctx context.Context, item *models.BillItem) error {
	if item == nil || item.ID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	result := r.db.WithContext(ctx).
		Model(&models.BillItem{}).
		Where("bill_id = ? AND id = ?", item.BillID, item.ID).
		Updates(map[string]any{
			"name":        item.Name,
			"quantity":    item.Quantity,
			"price_cents": item.PriceCents,
			"position":    item.Position,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteItem removes one item scoped to its bill.
func (r *Repository) DeleteItem(ctx context.Context, billID, itemID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("bill_id = ? AND id = ?", billID, itemID).
		Delete(&models.BillItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetItem loads one item scoped to its bill.
func (r *Repository) GetItem(ctx context.Context, billID, itemID uuid.UUID) (*models.BillItem, error) {
	var item models.BillItem
	err := r.db.WithContext(ctx).
		Where("bill_id = ? AND id = ?", billID, itemID).
		First(&item).
		Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// NextItemPosition returns the position after the bill's current last item.
func (r *Repository) NextItemPosition(ctx context.Context, billID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.BillItem{}).
		Select("MAX(position)").
		Where("bill_id = ?", billID).
		Scan(&max).
		Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (r *Repository) loadBill(ctx context.Context, query string, arg any) (*models.Bill, error) {
	var bill models.Bill
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Where(query, arg).
		First(&bill).
		Error
	if err != nil {
		return nil, err
	}
	return &bill, nil
}
