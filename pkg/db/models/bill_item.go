package models

import (
	"time"

	"github.com/google/uuid"
)

// BillItem is one priced, quantity-bearing line on a bill. Quantity may be
// fractional (2.5 portions); money is whole cents.
type BillItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BillID     uuid.UUID `gorm:"column:bill_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Quantity   float64   `gorm:"column:quantity;type:numeric(10,3);not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Position   int       `gorm:"column:position;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalCents returns quantity × unit price rounded to whole cents.
func (i BillItem) TotalCents() int64 {
	return MulQuantityCents(i.PriceCents, i.Quantity)
}
