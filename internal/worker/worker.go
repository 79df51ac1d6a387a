// Package worker drains the durable log through a consumer group: decode,
// update the latest-state cache, announce on the bus, acknowledge. A failed
// entry is left unacked so the lease expiry redelivers it.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/consumergroup"
	"github.com/pulsegrid/pulsegrid/internal/latest"
	"github.com/pulsegrid/pulsegrid/internal/metric"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// Defaults follow the consumer loop's classic shape: small batches, long
// blocking polls, a short breather after a transport error.
const (
	DefaultSize       = 2
	DefaultPollBatch  = 10
	DefaultPollBlock  = 5 * time.Second
	DefaultRetryDelay = time.Second
)

// Options configure a Pool; zero values take the defaults above.
type Options struct {
	Group      string
	Size       int
	PollBatch  int
	PollBlock  time.Duration
	RetryDelay time.Duration
}

// Pool runs a fixed set of supervised workers over one consumer group.
type Pool struct {
	logger  log.Logger
	groups  *consumergroup.Groups
	cache   *latest.Cache
	bus     *bus.Bus
	metrics *observability.Metrics

	group      string
	size       int
	pollBatch  int
	pollBlock  time.Duration
	retryDelay time.Duration
}

// NewPool wires a pool; Run starts it.
func NewPool(logger log.Logger, groups *consumergroup.Groups, cache *latest.Cache, b *bus.Bus, m *observability.Metrics, opts Options) *Pool {
	p := &Pool{
		logger:     logger.WithComponent("worker"),
		groups:     groups,
		cache:      cache,
		bus:        b,
		metrics:    m,
		group:      opts.Group,
		size:       opts.Size,
		pollBatch:  opts.PollBatch,
		pollBlock:  opts.PollBlock,
		retryDelay: opts.RetryDelay,
	}
	if p.group == "" {
		p.group = "processors"
	}
	if p.size <= 0 {
		p.size = DefaultSize
	}
	if p.pollBatch <= 0 {
		p.pollBatch = DefaultPollBatch
	}
	if p.pollBlock <= 0 {
		p.pollBlock = DefaultPollBlock
	}
	if p.retryDelay <= 0 {
		p.retryDelay = DefaultRetryDelay
	}
	return p
}

// Run blocks until ctx is done and every worker has drained its in-flight
// batch. Each worker is supervised: a panic restarts it instead of killing
// the pipeline.
func (p *Pool) Run(ctx context.Context) {
	if err := p.groups.Ensure(ctx, p.group); err != nil {
		p.logger.Error("ensure consumer group", log.Str("group", p.group), log.Err(err))
	}
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("%s-%d", p.group, i)
		go func() {
			defer wg.Done()
			p.supervise(ctx, consumer)
		}()
	}
	wg.Wait()
}

func (p *Pool) supervise(ctx context.Context, consumer string) {
	for ctx.Err() == nil {
		p.runWorker(ctx, consumer)
	}
}

func (p *Pool) runWorker(ctx context.Context, consumer string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panicked, restarting", log.Str("consumer", consumer), log.Any("panic", r))
		}
	}()
	logger := p.logger.With(log.Str("consumer", consumer))
	for {
		if ctx.Err() != nil {
			return
		}
		deliveries, err := p.groups.Poll(ctx, p.group, consumer, p.pollBatch, p.pollBlock, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("poll failed, backing off", log.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}
		for _, d := range deliveries {
			p.process(ctx, logger, d)
		}
	}
}

// process handles one delivery. Failures short of the ack leave the claim in
// place for redelivery after the lease expires.
func (p *Pool) process(ctx context.Context, logger log.Logger, d consumergroup.Delivery) {
	if d.Deliveries > 1 {
		p.metrics.EventsRedelivery.Inc()
	}
	ev, err := metric.Decode(d.Payload)
	if err != nil {
		logger.Error("undecodable entry", log.Uint64("seq", d.Seq), log.Err(err))
		return
	}
	if _, err := p.cache.Upsert(ctx, ev); err != nil {
		logger.Error("latest-state update failed", log.Uint64("seq", d.Seq), log.Err(err))
		return
	}
	p.bus.Publish(bus.Notification{Type: bus.TypeProcessed, EntryID: d.Seq, Event: ev})
	if err := p.groups.Ack(ctx, p.group, d.Seq); err != nil {
		logger.Error("ack failed", log.Uint64("seq", d.Seq), log.Err(err))
		return
	}
	p.metrics.EventsProcessed.Inc()
}
