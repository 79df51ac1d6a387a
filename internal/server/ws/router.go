package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/pulsegrid/internal/aggregate"
	"github.com/pulsegrid/pulsegrid/internal/fanout"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	"github.com/pulsegrid/pulsegrid/pkg/id"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// RouterServer is the direct pipeline's single endpoint: producers push
// metric frames, dashboards receive aggregated updates, both over /ws.
type RouterServer struct {
	logger   log.Logger
	hub      *fanout.Hub
	agg      *aggregate.Aggregator
	metrics  *observability.Metrics
	ids      *id.Generator
	upgrader websocket.Upgrader
}

// NewRouterServer wires the endpoint over the shared hub and aggregator.
func NewRouterServer(logger log.Logger, hub *fanout.Hub, agg *aggregate.Aggregator, m *observability.Metrics) *RouterServer {
	hub.SetPruneCounter(m.ClientsPruned)
	return &RouterServer{
		logger:  logger.WithComponent("ws.router"),
		hub:     hub,
		agg:     agg,
		metrics: m,
		ids:     id.NewGenerator(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler mounts the endpoint at /ws.
func (s *RouterServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

func (s *RouterServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", log.Err(err))
		return
	}
	clientID := s.ids.Next().String()
	// role is settled by the register frame; producer frames are accepted
	// either way, only dashboards receive broadcasts
	client := fanout.NewClient(clientID, conn, fanout.RoleProducer)
	conn.SetPongHandler(func(string) error {
		client.MarkAlive()
		return nil
	})

	_ = client.Send(marshal(map[string]any{"type": TypeConnectionAck, "clientId": clientID}))
	s.readLoop(conn, client)
}

func (s *RouterServer) readLoop(conn *websocket.Conn, client *fanout.Client) {
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
		case TypeRegister:
			s.handleRegister(client, msg)
		case TypeMetric:
			s.handleMetric(client, msg)
		case TypeSnapshotRequest:
			s.handleSnapshot(client, msg)
		default:
			_ = client.Send(errorFrame("unknown message type", nil))
		}
	}
}

func (s *RouterServer) handleRegister(client *fanout.Client, msg inbound) {
	var role fanout.Role
	switch msg.Role {
	case "producer", "":
		role = fanout.RoleProducer
	case "dashboard":
		role = fanout.RoleDashboard
	default:
		_ = client.Send(errorFrame("role must be producer or dashboard", nil))
		return
	}
	filter, err := fanout.NewFilter(msg.Filter)
	if err != nil {
		_ = client.Send(errorFrame("invalid filter expression", err.Error()))
		return
	}
	client.SetSubscription(role, msg.SourceID, filter)
	s.hub.Register(client)
	_ = client.Send(marshal(map[string]any{"type": TypeRegisterAck, "clientId": client.ID, "role": string(role)}))
}

func (s *RouterServer) handleMetric(client *fanout.Client, msg inbound) {
	ev := msg.event()
	if errs := ev.Validate(); len(errs) > 0 {
		s.metrics.EventsRejected.Inc()
		_ = client.Send(errorFrame("validation failed", errs))
		return
	}
	result := s.agg.Add(ev)
	s.metrics.EventsIngested.Inc()
	s.metrics.EventsProcessed.Inc()
	_ = client.Send(marshal(map[string]any{"type": TypeMetricAck, "sourceId": ev.SourceID}))

	payload := marshal(map[string]any{"type": TypeMetricUpdate, "payload": result})
	sent := s.hub.Broadcast(payload, ev)
	s.metrics.BroadcastsSent.Add(float64(sent))
}

func (s *RouterServer) handleSnapshot(client *fanout.Client, msg inbound) {
	var results []aggregate.Result
	if msg.SourceID != "" {
		if r := s.agg.Snapshot(msg.SourceID); r != nil {
			results = append(results, *r)
		}
	} else {
		results = s.agg.AllSnapshots()
	}
	if results == nil {
		results = []aggregate.Result{}
	}
	_ = client.Send(marshal(map[string]any{"type": TypeSnapshot, "snapshots": results}))
}
