package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/v1/members/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/members/"+id, nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/members/{id}", "418")); got != 3 {
		t.Fatalf("route counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")); got != 1 {
		t.Fatalf("unmatched counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpInFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
}

func TestAuthCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveLogin("ok")
	m.ObserveLogin("ok")
	m.ObserveLogin("invalid_credentials")
	m.ObserveDecision("deny")
	m.ObserveRefresh("reuse")
	m.ObserveVerification("token_expired")
	m.ObserveHash(10 * time.Millisecond)
	m.HashPoolWaiting(1)
	m.HashPoolWaiting(-1)

	if got := testutil.ToFloat64(m.logins.WithLabelValues("ok")); got != 2 {
		t.Fatalf("logins ok = %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("deny")); got != 1 {
		t.Fatalf("decisions deny = %v", got)
	}
	if got := testutil.ToFloat64(m.hashWaiting); got != 0 {
		t.Fatalf("hash waiting = %v", got)
	}
	if n := testutil.CollectAndCount(m.hashSeconds); n != 1 {
		t.Fatalf("hash histogram series = %d", n)
	}
}

func TestHandlerExposesBuildInfo(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetBuildInfo("1.2.3", "abc")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `build_info{commit="abc",version="1.2.3"} 1`) {
		t.Fatalf("build_info missing from exposition:\n%s", rec.Body.String())
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if ResolveLogger(nil) == nil {
		t.Fatal("ResolveLogger(nil) returned nil")
	}
}
