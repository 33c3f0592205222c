package liveview

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHTTPSourceFetchBreakdown(t *testing.T) {
	itemID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/shared/tok/breakdown" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// The session must ride along so the server scopes remaining to us.
		if got := r.Header.Get("X-ST-Session"); got != "sess-me" {
			t.Errorf("session header = %q, want sess-me", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"items":[{"item":{"id":%q,"name":"Pizza","quantity":4,"price_cents":1000,"position":0},"remaining":1.5,"claimed_total":2.5,"oversold":0,"fully_allocated":false}],"live_claims":[{"item_id":%q,"session_id":"s1","display_name":"Ana","quantity":1,"expires_at":"2026-01-01T00:00:00Z"}],"complete":false}}`, itemID, itemID)
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, "sess-me", nil)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	breakdown, err := source.FetchBreakdown(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchBreakdown: %v", err)
	}
	if len(breakdown.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(breakdown.Items))
	}
	if breakdown.Items[0].Item.ID != itemID || breakdown.Items[0].Remaining != 1.5 {
		t.Fatalf("unexpected item %+v", breakdown.Items[0])
	}
	if len(breakdown.LiveClaims) != 1 || breakdown.LiveClaims[0].SessionID != "s1" {
		t.Fatalf("unexpected live claims %+v", breakdown.LiveClaims)
	}
}

func TestHTTPSourceFetchSelections(t *testing.T) {
	selectionID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[{"id":%q,"display_name":"Ana","items":{"x":2},"tip_cents":100,"paid":true,"items_total_cents":2000,"total_cents":2100}]}`, selectionID)
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, "", nil)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	selections, err := source.FetchSelections(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchSelections: %v", err)
	}
	if len(selections) != 1 {
		t.Fatalf("expected 1 selection got %d", len(selections))
	}
	if selections[0].Selection.ID != selectionID || selections[0].TotalCents != 2100 {
		t.Fatalf("unexpected selection %+v", selections[0])
	}
	if !selections[0].Selection.Paid {
		t.Fatalf("expected paid selection")
	}
}

func TestHTTPSourceFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, "", nil)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	if _, err := source.FetchBreakdown(context.Background(), "tok"); err == nil {
		t.Fatalf("expected error on 404")
	}
}

func TestHTTPSourceSubscribeFeed(t *testing.T) {
	sessionSeen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionSeen <- r.Header.Get("X-ST-Session")
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()
		fmt.Fprint(w, "event: selections\ndata: {\"bill_id\":\"b1\",\"kind\":\"selections\"}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	sessionID := uuid.NewString()
	source, err := NewHTTPSource(server.URL, sessionID, nil)
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, stop, err := source.SubscribeFeed(ctx, "tok")
	if err != nil {
		t.Fatalf("SubscribeFeed: %v", err)
	}
	defer stop()

	if got := <-sessionSeen; got != sessionID {
		t.Fatalf("expected session header %q got %q", sessionID, got)
	}

	select {
	case event, ok := <-events:
		if !ok {
			t.Fatalf("stream closed before first event")
		}
		if event.BillID != "b1" || string(event.Kind) != "selections" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for event")
	}
}
