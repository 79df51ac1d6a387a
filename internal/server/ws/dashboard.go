package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/fanout"
	"github.com/pulsegrid/pulsegrid/internal/latest"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	"github.com/pulsegrid/pulsegrid/pkg/id"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// DashboardServer is the durable pipeline's fan-out endpoint. Every client
// is a dashboard; producers enter through the HTTP gateway.
type DashboardServer struct {
	logger   log.Logger
	hub      *fanout.Hub
	cache    *latest.Cache
	bus      *bus.Bus
	metrics  *observability.Metrics
	ids      *id.Generator
	upgrader websocket.Upgrader
}

// NewDashboardServer wires the endpoint over the shared hub.
func NewDashboardServer(logger log.Logger, hub *fanout.Hub, cache *latest.Cache, b *bus.Bus, m *observability.Metrics) *DashboardServer {
	hub.SetPruneCounter(m.ClientsPruned)
	return &DashboardServer{
		logger:  logger.WithComponent("ws.dashboard"),
		hub:     hub,
		cache:   cache,
		bus:     b,
		metrics: m,
		ids:     id.NewGenerator(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler mounts the endpoint at /ws.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

// RunBroadcast pumps bus notifications to registered dashboards until ctx
// is done. Both ingested and processed notifications pass through with
// their type intact.
func (s *DashboardServer) RunBroadcast(ctx context.Context) {
	notes, cancel := s.bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			sent := s.hub.Broadcast(marshal(n), n.Event)
			s.metrics.BroadcastsSent.Add(float64(sent))
		}
	}
}

func (s *DashboardServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", log.Err(err))
		return
	}
	clientID := s.ids.Next().String()
	client := fanout.NewClient(clientID, conn, fanout.RoleDashboard)
	conn.SetPongHandler(func(string) error {
		client.MarkAlive()
		return nil
	})

	_ = client.Send(marshal(map[string]any{"type": TypeConnectionAck, "clientId": clientID}))
	s.readLoop(conn, client)
}

func (s *DashboardServer) readLoop(conn *websocket.Conn, client *fanout.Client) {
	defer func() {
		s.hub.Remove(client.ID)
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = client.Send(errorFrame("malformed message", nil))
			continue
		}
		switch msg.Type {
		case TypeRegister, TypeSubscribe:
			s.handleRegister(client, msg)
		case TypeSnapshotRequest:
			s.handleSnapshot(client, msg)
		default:
			_ = client.Send(errorFrame("unknown message type", nil))
		}
	}
}

func (s *DashboardServer) handleRegister(client *fanout.Client, msg inbound) {
	filter, err := fanout.NewFilter(msg.Filter)
	if err != nil {
		_ = client.Send(errorFrame("invalid filter expression", err.Error()))
		return
	}
	client.SetSubscription(fanout.RoleDashboard, msg.SourceID, filter)
	s.hub.Register(client)
	_ = client.Send(marshal(map[string]any{"type": TypeRegisterAck, "clientId": client.ID}))
}

func (s *DashboardServer) handleSnapshot(client *fanout.Client, msg inbound) {
	var states []latest.State
	if msg.SourceID != "" {
		st, found, err := s.cache.Get(msg.SourceID)
		if err != nil {
			_ = client.Send(errorFrame("snapshot unavailable", nil))
			return
		}
		if found {
			states = append(states, st)
		}
	} else {
		var err error
		states, err = s.cache.All()
		if err != nil {
			_ = client.Send(errorFrame("snapshot unavailable", nil))
			return
		}
	}
	if states == nil {
		states = []latest.State{}
	}
	_ = client.Send(marshal(map[string]any{"type": TypeSnapshot, "states": states}))
}
