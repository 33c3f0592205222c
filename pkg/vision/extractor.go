package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/logger"
)

// ExtractedItem is one line the model read off a receipt. Prices come back
// in whole cents; the model is prompted for currency-sane values but callers
// must still bound-check them.
type ExtractedItem struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	PriceCents int64   `json:"price_cents"`
}

// Extractor turns a receipt image into structured line items. The vision
// model is a black box; implementations own prompt and transport details.
type Extractor interface {
	ExtractItems(ctx context.Context, imageURL string) ([]ExtractedItem, error)
}

var errAPIKeyRequired = errors.New("vision api key is required")

// Client calls an OpenAI-compatible chat completions endpoint with the
// receipt image attached.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	logg       *logger.Logger
}

// NewClient validates the vision configuration and returns a client.
func NewClient(cfg config.VisionConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vision base url is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		model:      cfg.Model,
		apiKey:     apiKey,
		logg:       logg,
	}, nil
}

const extractionPrompt = `Read the restaurant receipt in the image. Respond with a JSON object
{"items": [{"name": string, "quantity": number, "price_cents": integer}]}.
price_cents is the unit price in cents. quantity may be fractional.
Skip totals, taxes and tip lines. Respond with JSON only.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type extractionPayload struct {
	Items []ExtractedItem `json:"items"`
}

// ExtractItems sends the image to the model and decodes the item list.
func (c *Client) ExtractItems(ctx context.Context, imgURL string) ([]ExtractedItem, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: extractionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imgURL}},
			},
		}},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling vision api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("vision response contained no choices")
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("decoding extracted items: %w", err)
	}

	items := payload.Items[:0:0]
	for _, item := range payload.Items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" || item.Quantity <= 0 || item.PriceCents < 0 {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
