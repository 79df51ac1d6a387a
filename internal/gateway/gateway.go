// Package gateway is the durable pipeline's HTTP ingestion surface. Producers
// POST metric events; accepted events are appended to the durable log before
// the request returns and announced on the bus for dashboard fan-out.
package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/eventlog"
	"github.com/pulsegrid/pulsegrid/internal/metric"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// Server mounts the ingestion routes on a gin engine.
type Server struct {
	router  *gin.Engine
	logger  log.Logger
	log     *eventlog.Log
	bus     *bus.Bus
	metrics *observability.Metrics
	nowMs   func() int64
}

// New wires the gateway. The engine runs in release mode with the package
// logger instead of gin's default writer.
func New(logger log.Logger, elog *eventlog.Log, b *bus.Bus, m *observability.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		logger:  logger.WithComponent("gateway"),
		log:     elog,
		bus:     b,
		metrics: m,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
	router.Use(s.requestLog())

	router.POST("/metrics", s.handleIngest)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	return s
}

// Handler exposes the engine for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleIngest(c *gin.Context) {
	var ev metric.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		s.metrics.EventsRejected.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errs := ev.Validate(); len(errs) > 0 {
		s.metrics.EventsRejected.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": errs})
		return
	}

	payload, err := ev.Encode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue metric"})
		return
	}
	seq, err := s.log.Append(c.Request.Context(), s.nowMs(), payload)
	if err != nil {
		s.logger.Error("append failed", log.Str("source_id", ev.SourceID), log.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue metric"})
		return
	}

	s.metrics.EventsIngested.Inc()
	s.bus.Publish(bus.Notification{Type: bus.TypeIngested, EntryID: seq, Event: ev})
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "entryId": seq})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			log.Str("method", c.Request.Method),
			log.Str("path", c.Request.URL.Path),
			log.Int("status", c.Writer.Status()),
			log.Int64("elapsed_us", time.Since(start).Microseconds()))
	}
}
