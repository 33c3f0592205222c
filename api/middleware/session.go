package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/pkg/logger"
)

// SessionHeader carries the client-minted anonymous session id. The server
// never issues these; a browser generates one on first visit and keeps it in
// local storage, so possession of the id is the whole identity model.
const SessionHeader = "X-ST-Session"

type contextKey string

const ctxSessionID contextKey = "session_id"

// Session extracts the anonymous session id into the request context and the
// log fields. Requests without one (payer dashboard calls, crawlers) pass
// through with an empty session.
func Session(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(SessionHeader)
			if _, err := uuid.Parse(raw); err != nil {
				raw = ""
			}

			ctx := r.Context()
			if raw != "" {
				ctx = WithSessionID(ctx, raw)
				if logg != nil {
					ctx = logg.WithSessionID(ctx, raw)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSessionID stores the anonymous session id on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

// SessionIDFromContext returns the anonymous session id, empty when the
// request carried none.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}
