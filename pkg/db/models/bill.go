package models

import (
	"time"

	"github.com/google/uuid"
)

// Bill is the shared receipt being split. Both tokens are random,
// link-scoped capabilities: the owner token gates payer operations and the
// share token gates guest operations. There is no account model behind them.
type Bill struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerToken   string     `gorm:"column:owner_token;not null;uniqueIndex"`
	ShareToken   string     `gorm:"column:share_token;not null;uniqueIndex"`
	Title        string     `gorm:"column:title;not null"`
	Currency     string     `gorm:"column:currency;not null;default:'EUR'"`
	PayerName    string     `gorm:"column:payer_name;not null"`
	PaypalHandle *string    `gorm:"column:paypal_handle"`
	Items        []BillItem `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
