package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/pkg/enums"
)

// ReceiptScan tracks one uploaded receipt image through extraction.
type ReceiptScan struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BillID     uuid.UUID        `gorm:"column:bill_id;type:uuid;not null;index"`
	ObjectPath string           `gorm:"column:object_path;not null"`
	Status     enums.ScanStatus `gorm:"column:status;type:scan_status;not null;default:'pending'"`
	Error      *string          `gorm:"column:error"`
	ItemCount  int              `gorm:"column:item_count;not null;default:0"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
