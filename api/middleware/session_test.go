package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestSessionMiddleware(t *testing.T) {
	var captured string
	handler := Session(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = SessionIDFromContext(r.Context())
	}))

	sessionID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, sessionID)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != sessionID {
		t.Fatalf("session id = %q, want %q", captured, sessionID)
	}

	// Garbage is dropped rather than trusted.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, "definitely-not-a-uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "" {
		t.Fatalf("session id = %q, want empty for invalid header", captured)
	}

	// Missing header passes through with no session.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "" {
		t.Fatalf("session id = %q, want empty when absent", captured)
	}
}
