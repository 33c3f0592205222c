package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/feed"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/metrics"
)

// FeedEvents streams the bill's change feed over server-sent events. Events
// are hints, not state: clients refetch whatever the event names. Comment
// lines keep intermediaries from closing the idle connection.
func FeedEvents(billSvc bills.Service, broker feed.Broker, feedMetrics *metrics.FeedMetrics, keepAlive time.Duration, logg *logger.Logger) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || broker == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "feed unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		events, cancel := broker.Subscribe(bill.ID.String())
		defer cancel()

		if feedMetrics != nil {
			feedMetrics.SubscriberConnected("sse")
			defer feedMetrics.SubscriberDisconnected("sse")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case event, open := <-events:
				if !open {
					return
				}
				if err := writeSSE(w, event); err != nil {
					if logg != nil {
						logg.Warn(logg.WithBillID(ctx, bill.ID.String()), "feed stream write failed")
					}
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event feed.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}
