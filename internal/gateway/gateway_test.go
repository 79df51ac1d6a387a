package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/eventlog"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *eventlog.Log, *bus.Bus) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncNever})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	elog, err := eventlog.Open(db, "metrics")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	logger := log.NewLogger(log.WithOutput(log.NewWriterOutput(io.Discard)))
	b := bus.New(logger)
	t.Cleanup(b.Close)
	return New(logger, elog, b, observability.New()), elog, b
}

func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/metrics", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestIngestAccepted(t *testing.T) {
	s, elog, b := newTestServer(t)
	notes, cancel := b.Subscribe()
	defer cancel()

	w := post(t, s, `{"sourceId":"srv-1","timestamp":1700000000000,"metrics":{"cpu":42.5,"memory":60,"disk":70,"network":{"in":100,"out":50}}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		EntryID uint64 `json:"entryId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "accepted" || resp.EntryID != 1 {
		t.Fatalf("response = %+v", resp)
	}

	// appended before the response was written
	if got := elog.LastSeq(); got != 1 {
		t.Fatalf("log last seq = %d, want 1", got)
	}

	select {
	case n := <-notes:
		if n.Type != bus.TypeIngested || n.EntryID != 1 || n.Event.SourceID != "srv-1" {
			t.Fatalf("notification = %+v", n)
		}
	default:
		t.Fatal("no ingest notification published")
	}
}

func TestIngestValidationFailure(t *testing.T) {
	s, elog, _ := newTestServer(t)

	w := post(t, s, `{"sourceId":"","timestamp":0,"metrics":{"cpu":150,"memory":50,"disk":50}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp struct {
		Error   string `json:"error"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "validation failed" || len(resp.Details) != 3 {
		t.Fatalf("response = %+v, want 3 field errors", resp)
	}
	if elog.LastSeq() != 0 {
		t.Fatal("rejected event reached the log")
	}
}

func TestIngestMalformedBody(t *testing.T) {
	s, _, _ := newTestServer(t)
	if w := post(t, s, `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	s, _, _ := newTestServer(t)
	post(t, s, `{"sourceId":"srv-1","timestamp":1700000000000,"metrics":{"cpu":10,"memory":10,"disk":10}}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pulsegrid_events_ingested_total 1") {
		t.Fatalf("exposition missing ingest counter:\n%s", w.Body.String())
	}
}
