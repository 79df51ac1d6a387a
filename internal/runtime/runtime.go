package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/pulsegrid/pulsegrid/internal/consumergroup"
	"github.com/pulsegrid/pulsegrid/internal/eventlog"
	"github.com/pulsegrid/pulsegrid/internal/latest"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Metrics       pebblestore.MetricsHook

	Stream       string
	ClaimTimeout time.Duration
}

// Runtime owns the store and the facades built on it.
type Runtime struct {
	db     *pebblestore.DB
	log    *eventlog.Log
	groups *consumergroup.Groups
	cache  *latest.Cache
}

// Open initializes the underlying storage and the facades.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	stream := opts.Stream
	if stream == "" {
		stream = "metrics"
	}
	elog, err := eventlog.Open(db, stream)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Runtime{
		db:     db,
		log:    elog,
		groups: consumergroup.New(db, elog, consumergroup.Options{ClaimTimeout: opts.ClaimTimeout}),
		cache:  latest.New(db),
	}, nil
}

// Close closes underlying resources. Callers stop the servers and drain the
// workers first; the store goes down last.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage round trip.
func (r *Runtime) CheckHealth(_ context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Log returns the metric event log.
func (r *Runtime) Log() *eventlog.Log { return r.log }

// Groups returns the consumer-group facade.
func (r *Runtime) Groups() *consumergroup.Groups { return r.groups }

// Cache returns the latest-state cache.
func (r *Runtime) Cache() *latest.Cache { return r.cache }

// DB exposes the underlying store (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }
