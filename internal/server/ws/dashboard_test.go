package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/fanout"
	"github.com/pulsegrid/pulsegrid/internal/latest"
	"github.com/pulsegrid/pulsegrid/internal/metric"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

func testLogger() log.Logger {
	return log.NewLogger(log.WithOutput(log.NewWriterOutput(io.Discard)))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return out
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

type dashFixture struct {
	srv   *httptest.Server
	bus   *bus.Bus
	cache *latest.Cache
}

func newDashboardFixture(t *testing.T) *dashFixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncNever})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := testLogger()
	b := bus.New(logger)
	t.Cleanup(b.Close)
	cache := latest.New(db)
	server := NewDashboardServer(logger, fanout.NewHub(logger), cache, b, observability.New())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.RunBroadcast(ctx)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &dashFixture{srv: srv, bus: b, cache: cache}
}

func TestDashboardConnectionAck(t *testing.T) {
	f := newDashboardFixture(t)
	conn := dial(t, f.srv)
	ack := readFrame(t, conn)
	if ack["type"] != TypeConnectionAck || ack["clientId"] == "" {
		t.Fatalf("first frame = %v", ack)
	}
}

func TestDashboardReceivesBusNotifications(t *testing.T) {
	f := newDashboardFixture(t)
	conn := dial(t, f.srv)
	readFrame(t, conn) // connection.ack

	send(t, conn, map[string]any{"type": TypeRegister})
	if ack := readFrame(t, conn); ack["type"] != TypeRegisterAck {
		t.Fatalf("register reply = %v", ack)
	}

	ev := metric.Event{SourceID: "srv-1", Timestamp: 1000, Metrics: metric.Metrics{CPU: 42}}
	f.bus.Publish(bus.Notification{Type: bus.TypeIngested, EntryID: 7, Event: ev})

	frame := readFrame(t, conn)
	if frame["type"] != bus.TypeIngested {
		t.Fatalf("frame type = %v, want %s", frame["type"], bus.TypeIngested)
	}
	if frame["entryId"].(float64) != 7 {
		t.Fatalf("entryId = %v", frame["entryId"])
	}
	payload := frame["payload"].(map[string]any)
	if payload["sourceId"] != "srv-1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDashboardSubscribeAlias(t *testing.T) {
	f := newDashboardFixture(t)
	conn := dial(t, f.srv)
	readFrame(t, conn)

	send(t, conn, map[string]any{"type": TypeSubscribe, "sourceId": "srv-2"})
	if ack := readFrame(t, conn); ack["type"] != TypeRegisterAck {
		t.Fatalf("subscribe reply = %v", ack)
	}

	// filtered out: different source
	f.bus.Publish(bus.Notification{Type: bus.TypeProcessed, EntryID: 1,
		Event: metric.Event{SourceID: "srv-1", Timestamp: 1000}})
	// delivered
	f.bus.Publish(bus.Notification{Type: bus.TypeProcessed, EntryID: 2,
		Event: metric.Event{SourceID: "srv-2", Timestamp: 1000}})

	frame := readFrame(t, conn)
	if frame["entryId"].(float64) != 2 {
		t.Fatalf("got entry %v, want only the srv-2 notification", frame["entryId"])
	}
}

func TestDashboardSnapshotRequest(t *testing.T) {
	f := newDashboardFixture(t)
	ctx := context.Background()
	for _, s := range []string{"srv-1", "srv-2"} {
		if _, err := f.cache.Upsert(ctx, metric.Event{SourceID: s, Timestamp: 1000, Metrics: metric.Metrics{CPU: 10}}); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
	conn := dial(t, f.srv)
	readFrame(t, conn)

	send(t, conn, map[string]any{"type": TypeSnapshotRequest})
	frame := readFrame(t, conn)
	if frame["type"] != TypeSnapshot {
		t.Fatalf("reply = %v", frame)
	}
	if states := frame["states"].([]any); len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}

	send(t, conn, map[string]any{"type": TypeSnapshotRequest, "sourceId": "srv-1"})
	frame = readFrame(t, conn)
	states := frame["states"].([]any)
	if len(states) != 1 || states[0].(map[string]any)["sourceId"] != "srv-1" {
		t.Fatalf("single-source snapshot = %v", states)
	}

	// unknown source yields an empty snapshot, not an error
	send(t, conn, map[string]any{"type": TypeSnapshotRequest, "sourceId": "ghost"})
	frame = readFrame(t, conn)
	if len(frame["states"].([]any)) != 0 {
		t.Fatalf("ghost snapshot = %v", frame)
	}
}

func TestDashboardInvalidFrames(t *testing.T) {
	f := newDashboardFixture(t)
	conn := dial(t, f.srv)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{oops")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != TypeError {
		t.Fatalf("malformed frame reply = %v", frame)
	}

	send(t, conn, map[string]any{"type": "bogus"})
	if frame := readFrame(t, conn); frame["type"] != TypeError {
		t.Fatalf("unknown type reply = %v", frame)
	}

	send(t, conn, map[string]any{"type": TypeRegister, "filter": "cpu >>> 1"})
	frame := readFrame(t, conn)
	if frame["type"] != TypeError || frame["error"] != "invalid filter expression" {
		t.Fatalf("bad filter reply = %v", frame)
	}
}
