package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
)

// ScanJob is the queue payload handed to the scan worker.
type ScanJob struct {
	ScanID     string `json:"scan_id"`
	BillID     string `json:"bill_id"`
	ObjectPath string `json:"object_path"`
}

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

type objectUploader interface {
	UploadObject(ctx context.Context, objectPath, contentType string, body io.Reader) error
}

type jobPublisher interface {
	PublishScanJob(ctx context.Context, data []byte) error
}

// Service accepts receipt uploads and enqueues them for extraction.
type Service interface {
	Upload(ctx context.Context, bill *models.Bill, contentType string, size int64, body io.Reader) (*models.ReceiptScan, error)
	GetScan(ctx context.Context, billID, scanID uuid.UUID) (*models.ReceiptScan, error)
}

type service struct {
	repo      ScanRepository
	storage   objectUploader
	publisher jobPublisher
	maxBytes  int64
	logg      *logger.Logger
}

// NewService builds the receipts service backed by the provided stack.
func NewService(repo ScanRepository, storage objectUploader, publisher jobPublisher, cfg config.ReceiptsConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("scan repository required")
	}
	if storage == nil {
		return nil, fmt.Errorf("object storage required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("job publisher required")
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 20
	}
	return &service{
		repo:      repo,
		storage:   storage,
		publisher: publisher,
		maxBytes:  int64(maxMB) << 20,
		logg:      logg,
	}, nil
}

// Upload stores the image, records the scan and enqueues the extraction job.
// The scan row is written after the object so a row never points at nothing;
// a failed enqueue marks the scan failed rather than leaving it pending
// forever.
func (s *service) Upload(ctx context.Context, bill *models.Bill, contentType string, size int64, body io.Reader) (*models.ReceiptScan, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	ext, ok := extByContentType[contentType]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt must be a jpeg, png, webp or heic image")
	}
	if size <= 0 || size > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("receipt image must be between 1 byte and %d MB", s.maxBytes>>20))
	}

	scanID := uuid.New()
	objectPath := path.Join("receipts", bill.ID.String(), scanID.String()+ext)
	if err := s.storage.UploadObject(ctx, objectPath, contentType, io.LimitReader(body, s.maxBytes)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing receipt image")
	}

	scan := &models.ReceiptScan{
		ID:         scanID,
		BillID:     bill.ID,
		ObjectPath: objectPath,
		Status:     enums.ScanStatusPending,
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording receipt scan")
	}

	payload, err := json.Marshal(ScanJob{
		ScanID:     scanID.String(),
		BillID:     bill.ID.String(),
		ObjectPath: objectPath,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding scan job")
	}
	if err := s.publisher.PublishScanJob(ctx, payload); err != nil {
		if markErr := s.repo.MarkFailed(ctx, scanID, "enqueue failed"); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "marking scan failed after enqueue error", markErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueuing scan job")
	}
	return scan, nil
}

// GetScan returns the scan's current status for polling clients.
func (s *service) GetScan(ctx context.Context, billID, scanID uuid.UUID) (*models.ReceiptScan, error) {
	scan, err := s.repo.GetByID(ctx, billID, scanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading scan")
	}
	return scan, nil
}
