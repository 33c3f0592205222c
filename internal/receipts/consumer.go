package receipts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/vision"
)

type objectReader interface {
	ReadObject(ctx context.Context, objectPath string) ([]byte, string, error)
}

type itemAdder interface {
	AddExtractedItems(ctx context.Context, billID uuid.UUID, inputs []bills.ItemInput) ([]models.BillItem, error)
}

// Processor runs one scan job end to end: fetch the image, extract line
// items, append them to the bill and close out the scan row.
type Processor struct {
	repo      ScanRepository
	storage   objectReader
	extractor vision.Extractor
	items     itemAdder
	logg      *logger.Logger
}

// NewProcessor builds the scan job processor.
func NewProcessor(repo ScanRepository, storage objectReader, extractor vision.Extractor, items itemAdder, logg *logger.Logger) (*Processor, error) {
	if repo == nil {
		return nil, fmt.Errorf("scan repository required")
	}
	if storage == nil {
		return nil, fmt.Errorf("object storage required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("vision extractor required")
	}
	if items == nil {
		return nil, fmt.Errorf("item adder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Processor{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		items:     items,
		logg:      logg,
	}, nil
}

// Process handles one queue payload. Errors are recorded on the scan row and
// returned so the subscription redelivers; a later attempt that succeeds
// overwrites the failure.
func (p *Processor) Process(ctx context.Context, data []byte) error {
	var job ScanJob
	if err := json.Unmarshal(data, &job); err != nil {
		// Malformed payloads can never succeed; swallow them.
		p.logg.Error(ctx, "discarding malformed scan job", err)
		return nil
	}
	scanID, err := uuid.Parse(job.ScanID)
	if err != nil {
		p.logg.Error(ctx, "discarding scan job with bad scan id", err)
		return nil
	}
	billID, err := uuid.Parse(job.BillID)
	if err != nil {
		p.logg.Error(ctx, "discarding scan job with bad bill id", err)
		return nil
	}

	logCtx := p.logg.WithFields(ctx, map[string]any{
		"scan_id": job.ScanID,
		"bill_id": job.BillID,
	})

	if err := p.repo.MarkRunning(logCtx, scanID); err != nil {
		return fmt.Errorf("marking scan running: %w", err)
	}

	image, contentType, err := p.storage.ReadObject(logCtx, job.ObjectPath)
	if err != nil {
		return p.fail(logCtx, scanID, "reading receipt image", err)
	}

	extracted, err := p.extractor.ExtractItems(logCtx, dataURL(contentType, image))
	if err != nil {
		return p.fail(logCtx, scanID, "extracting items", err)
	}
	if len(extracted) == 0 {
		return p.fail(logCtx, scanID, "extracting items", fmt.Errorf("no line items found"))
	}

	inputs := make([]bills.ItemInput, 0, len(extracted))
	for _, item := range extracted {
		inputs = append(inputs, bills.ItemInput{
			Name:       item.Name,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	added, err := p.items.AddExtractedItems(logCtx, billID, inputs)
	if err != nil {
		return p.fail(logCtx, scanID, "adding extracted items", err)
	}

	if err := p.repo.MarkDone(logCtx, scanID, len(added)); err != nil {
		return fmt.Errorf("marking scan done: %w", err)
	}
	p.logg.Info(logCtx, "receipt scan completed")
	return nil
}

func (p *Processor) fail(ctx context.Context, scanID uuid.UUID, stage string, cause error) error {
	p.logg.Error(ctx, "receipt scan failed", cause)
	if err := p.repo.MarkFailed(ctx, scanID, stage+": "+cause.Error()); err != nil {
		p.logg.Error(ctx, "marking scan failed", err)
	}
	return fmt.Errorf("%s: %w", stage, cause)
}

func dataURL(contentType string, image []byte) string {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
