package liveview

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/db/types"
	"github.com/splittab/splittab-backend/pkg/enums"
	"github.com/splittab/splittab-backend/pkg/logger"
)

const sessionHeader = "X-ST-Session"

// HTTPSource reads bill state from a running API over its public shared
// endpoints, the same surface a browser guest uses.
type HTTPSource struct {
	baseURL   string
	sessionID string
	client    *http.Client
	// stream has no timeout; the SSE connection stays open until canceled.
	stream *http.Client
	logg   *logger.Logger
}

func NewHTTPSource(baseURL, sessionID string, logg *logger.Logger) (*HTTPSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url required")
	}
	return &HTTPSource{
		baseURL:   baseURL,
		sessionID: sessionID,
		client:    &http.Client{Timeout: 30 * time.Second},
		stream:    &http.Client{},
		logg:      logg,
	}, nil
}

type wireItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	PriceCents int64   `json:"price_cents"`
	Position   int     `json:"position"`
}

type wireItemBreakdown struct {
	Item           wireItem `json:"item"`
	Remaining      float64  `json:"remaining"`
	ClaimedTotal   float64  `json:"claimed_total"`
	Oversold       float64  `json:"oversold"`
	FullyAllocated bool     `json:"fully_allocated"`
}

type wireLiveClaim struct {
	ItemID      string    `json:"item_id"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	Quantity    float64   `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type wireBreakdown struct {
	Items      []wireItemBreakdown `json:"items"`
	LiveClaims []wireLiveClaim     `json:"live_claims"`
	Complete   bool                `json:"complete"`
}

type wireSelection struct {
	ID              string               `json:"id"`
	SessionID       *string              `json:"session_id"`
	DisplayName     string               `json:"display_name"`
	Items           types.ItemQuantities `json:"items"`
	TipCents        int64                `json:"tip_cents"`
	PaymentMethod   *enums.PaymentMethod `json:"payment_method"`
	Paid            bool                 `json:"paid"`
	ItemsTotalCents int64                `json:"items_total_cents"`
	TotalCents      int64                `json:"total_cents"`
	PayLink         string               `json:"pay_link"`
	OversoldItemIDs []string             `json:"oversold_item_ids"`
	CreatedAt       time.Time            `json:"created_at"`
}

func (s *HTTPSource) FetchBreakdown(ctx context.Context, shareToken string) (*claims.Breakdown, error) {
	var wire wireBreakdown
	if err := s.getJSON(ctx, s.sharedURL(shareToken, "breakdown"), &wire); err != nil {
		return nil, err
	}

	breakdown := &claims.Breakdown{Complete: wire.Complete}
	for _, row := range wire.Items {
		itemID, err := uuid.Parse(row.Item.ID)
		if err != nil {
			return nil, fmt.Errorf("parsing item id %q: %w", row.Item.ID, err)
		}
		breakdown.Items = append(breakdown.Items, claims.ItemBreakdown{
			Item: models.BillItem{
				ID:         itemID,
				Name:       row.Item.Name,
				Quantity:   row.Item.Quantity,
				PriceCents: row.Item.PriceCents,
				Position:   row.Item.Position,
			},
			Remaining:      row.Remaining,
			ClaimedTotal:   row.ClaimedTotal,
			Oversold:       row.Oversold,
			FullyAllocated: row.FullyAllocated,
		})
	}
	for _, claim := range wire.LiveClaims {
		breakdown.LiveClaims = append(breakdown.LiveClaims, claims.LiveClaim{
			ItemID:      claim.ItemID,
			SessionID:   claim.SessionID,
			DisplayName: claim.DisplayName,
			Quantity:    claim.Quantity,
			ExpiresAt:   claim.ExpiresAt,
		})
	}
	return breakdown, nil
}

func (s *HTTPSource) FetchSelections(ctx context.Context, shareToken string) ([]claims.SelectionSummary, error) {
	var wire []wireSelection
	if err := s.getJSON(ctx, s.sharedURL(shareToken, "selections"), &wire); err != nil {
		return nil, err
	}

	summaries := make([]claims.SelectionSummary, 0, len(wire))
	for _, row := range wire {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("parsing selection id %q: %w", row.ID, err)
		}
		summaries = append(summaries, claims.SelectionSummary{
			Selection: models.Selection{
				ID:            id,
				SessionID:     row.SessionID,
				DisplayName:   row.DisplayName,
				Items:         row.Items,
				TipCents:      row.TipCents,
				PaymentMethod: row.PaymentMethod,
				Paid:          row.Paid,
				CreatedAt:     row.CreatedAt,
			},
			ItemsTotalCents: row.ItemsTotalCents,
			TotalCents:      row.TotalCents,
			PayLink:         row.PayLink,
			OversoldItemIDs: row.OversoldItemIDs,
		})
	}
	return summaries, nil
}

// SubscribeFeed opens the SSE stream and decodes hints into feed events. The
// returned channel closes when the stream drops so the watcher can
// resubscribe with backoff.
func (s *HTTPSource) SubscribeFeed(ctx context.Context, shareToken string) (<-chan feed.Event, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sharedURL(shareToken, "events"), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.sessionID != "" {
		req.Header.Set(sessionHeader, s.sessionID)
	}

	resp, err := s.stream.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	events := make(chan feed.Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var data strings.Builder
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if data.Len() > 0 {
					var event feed.Event
					if err := json.Unmarshal([]byte(data.String()), &event); err == nil {
						select {
						case events <- event:
						case <-ctx.Done():
							return
						}
					} else if s.logg != nil {
						s.logg.Warn(ctx, "dropping undecodable feed event")
					}
					data.Reset()
				}
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
	}()

	return events, func() { resp.Body.Close() }, nil
}

func (s *HTTPSource) sharedURL(shareToken string, suffix string) string {
	return s.baseURL + "/api/v1/shared/" + shareToken + "/" + suffix
}

func (s *HTTPSource) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if s.sessionID != "" {
		req.Header.Set(sessionHeader, s.sessionID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return json.Unmarshal(envelope.Data, dest)
}
