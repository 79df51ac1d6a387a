package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/pulsegrid/pulsegrid/internal/aggregate"
	"github.com/pulsegrid/pulsegrid/internal/fanout"
	"github.com/pulsegrid/pulsegrid/internal/observability"
)

func newRouterFixture(t *testing.T) *httptest.Server {
	t.Helper()
	logger := testLogger()
	server := NewRouterServer(logger, fanout.NewHub(logger), aggregate.New(aggregate.Options{}), observability.New())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterRegisterRoles(t *testing.T) {
	srv := newRouterFixture(t)
	conn := dial(t, srv)
	readFrame(t, conn) // connection.ack

	send(t, conn, map[string]any{"type": TypeRegister, "role": "dashboard"})
	ack := readFrame(t, conn)
	if ack["type"] != TypeRegisterAck || ack["role"] != "dashboard" {
		t.Fatalf("register reply = %v", ack)
	}

	send(t, conn, map[string]any{"type": TypeRegister, "role": "submarine"})
	if frame := readFrame(t, conn); frame["type"] != TypeError {
		t.Fatalf("bad role reply = %v", frame)
	}
}

func TestRouterMetricFlow(t *testing.T) {
	srv := newRouterFixture(t)

	dash := dial(t, srv)
	readFrame(t, dash)
	send(t, dash, map[string]any{"type": TypeRegister, "role": "dashboard"})
	readFrame(t, dash)

	prod := dial(t, srv)
	readFrame(t, prod)
	send(t, prod, map[string]any{"type": TypeRegister, "role": "producer"})
	readFrame(t, prod)

	send(t, prod, map[string]any{
		"type": TypeMetric, "sourceId": "srv-1", "timestamp": 1700000000000,
		"metrics": map[string]any{"cpu": 80, "memory": 60, "disk": 40},
	})
	if ack := readFrame(t, prod); ack["type"] != TypeMetricAck || ack["sourceId"] != "srv-1" {
		t.Fatalf("metric ack = %v", ack)
	}

	update := readFrame(t, dash)
	if update["type"] != TypeMetricUpdate {
		t.Fatalf("dashboard frame = %v", update)
	}
	payload := update["payload"].(map[string]any)
	if payload["sourceId"] != "srv-1" {
		t.Fatalf("update payload = %v", payload)
	}
	windows := payload["windows"].(map[string]any)
	w1000 := windows["1000"].(map[string]any)
	if w1000["samples"].(float64) != 1 {
		t.Fatalf("1s window = %v", w1000)
	}
	if avg := w1000["averages"].(map[string]any); avg["cpu"].(float64) != 80 {
		t.Fatalf("averages = %v", avg)
	}
}

func TestRouterValidationReply(t *testing.T) {
	srv := newRouterFixture(t)
	conn := dial(t, srv)
	readFrame(t, conn)

	send(t, conn, map[string]any{
		"type": TypeMetric, "sourceId": "", "timestamp": 0,
		"metrics": map[string]any{"cpu": 200, "memory": 50, "disk": 50},
	})
	frame := readFrame(t, conn)
	if frame["type"] != TypeError || frame["error"] != "validation failed" {
		t.Fatalf("reply = %v", frame)
	}
	if details := frame["details"].([]any); len(details) != 3 {
		t.Fatalf("details = %v, want 3 field errors", details)
	}
}

func TestRouterSourceFilteredBroadcast(t *testing.T) {
	srv := newRouterFixture(t)

	dash := dial(t, srv)
	readFrame(t, dash)
	send(t, dash, map[string]any{"type": TypeRegister, "role": "dashboard", "sourceId": "srv-2"})
	readFrame(t, dash)

	prod := dial(t, srv)
	readFrame(t, prod)

	for _, src := range []string{"srv-1", "srv-2"} {
		send(t, prod, map[string]any{
			"type": TypeMetric, "sourceId": src, "timestamp": 1700000000000,
			"metrics": map[string]any{"cpu": 10, "memory": 10, "disk": 10},
		})
		readFrame(t, prod) // metric.ack
	}

	update := readFrame(t, dash)
	payload := update["payload"].(map[string]any)
	if payload["sourceId"] != "srv-2" {
		t.Fatalf("dashboard saw %v, want only srv-2", payload["sourceId"])
	}
}

func TestRouterReRegisterReplacesSubscription(t *testing.T) {
	srv := newRouterFixture(t)

	dash := dial(t, srv)
	readFrame(t, dash)
	send(t, dash, map[string]any{"type": TypeRegister, "role": "dashboard", "sourceId": "srv-1"})
	readFrame(t, dash)
	send(t, dash, map[string]any{"type": TypeRegister, "role": "dashboard", "sourceId": "srv-2"})
	readFrame(t, dash)

	prod := dial(t, srv)
	readFrame(t, prod)

	for _, src := range []string{"srv-1", "srv-2"} {
		send(t, prod, map[string]any{
			"type": TypeMetric, "sourceId": src, "timestamp": 1700000000000,
			"metrics": map[string]any{"cpu": 10, "memory": 10, "disk": 10},
		})
		readFrame(t, prod) // metric.ack
	}

	update := readFrame(t, dash)
	payload := update["payload"].(map[string]any)
	if payload["sourceId"] != "srv-2" {
		t.Fatalf("dashboard saw %v, want only the re-registered srv-2", payload["sourceId"])
	}
}

func TestRouterSnapshot(t *testing.T) {
	srv := newRouterFixture(t)
	conn := dial(t, srv)
	readFrame(t, conn)

	for _, src := range []string{"srv-1", "srv-2"} {
		send(t, conn, map[string]any{
			"type": TypeMetric, "sourceId": src, "timestamp": 1700000000000,
			"metrics": map[string]any{"cpu": 50, "memory": 50, "disk": 50},
		})
		readFrame(t, conn)
	}

	send(t, conn, map[string]any{"type": TypeSnapshotRequest, "sourceId": "srv-1"})
	frame := readFrame(t, conn)
	if frame["type"] != TypeSnapshot {
		t.Fatalf("reply = %v", frame)
	}
	snaps := frame["snapshots"].([]any)
	if len(snaps) != 1 || snaps[0].(map[string]any)["sourceId"] != "srv-1" {
		t.Fatalf("snapshots = %v", snaps)
	}

	send(t, conn, map[string]any{"type": TypeSnapshotRequest})
	frame = readFrame(t, conn)
	if got := len(frame["snapshots"].([]any)); got != 2 {
		t.Fatalf("all-source snapshot count = %d, want 2", got)
	}
}
