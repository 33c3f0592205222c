package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splittab/splittab-backend/pkg/db/types"
	"github.com/splittab/splittab-backend/pkg/enums"
)

// Selection is a durable, submitted claim by one guest (or the payer acting
// for themselves) covering one or more items plus tip. SessionID is nil for
// selections the payer records on behalf of someone without a browser
// session; PaymentMethod is nil while a flow is still composing. Paid means
// the payer confirmed receipt, independent of the declared method.
type Selection struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BillID        uuid.UUID            `gorm:"column:bill_id;type:uuid;not null;index"`
	SessionID     *string              `gorm:"column:session_id"`
	DisplayName   string               `gorm:"column:display_name;not null"`
	Items         types.ItemQuantities `gorm:"column:items;type:jsonb;serializer:json;not null"`
	TipCents      int64                `gorm:"column:tip_cents;not null;default:0"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:payment_method"`
	Paid          bool                 `gorm:"column:paid;not null;default:false"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsGuest reports whether the selection was submitted from a browser session.
func (s Selection) IsGuest() bool {
	return s.SessionID != nil && *s.SessionID != ""
}

// MulQuantityCents multiplies a unit price in cents by a fractional quantity
// and rounds to whole cents. Money math goes through decimal so fractional
// quantities cannot accumulate float drift.
func MulQuantityCents(priceCents int64, quantity float64) int64 {
	return decimal.NewFromInt(priceCents).
		Mul(decimal.NewFromFloat(quantity)).
		Round(0).
		IntPart()
}
