package latest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/pulsegrid/pulsegrid/internal/metric"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
)

const keyPrefix = "pg/latest/"

// State is the persisted snapshot for one source.
type State struct {
	SourceID  string         `json:"sourceId"`
	Timestamp int64          `json:"timestamp"`
	Metrics   metric.Metrics `json:"metrics"`
}

// Cache stores the freshest sample per source.
type Cache struct {
	db *pebblestore.DB
	mu sync.Mutex
}

// New builds a cache over db.
func New(db *pebblestore.DB) *Cache {
	return &Cache{db: db}
}

func key(sourceID string) []byte {
	return append([]byte(keyPrefix), sourceID...)
}

// Upsert records ev as the source's latest state unless a newer sample is
// already stored. Returns true when the stored state changed.
func (c *Cache) Upsert(ctx context.Context, ev metric.Event) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(ev.SourceID)
	if cur, err := c.db.Get(k); err == nil {
		var prev State
		if json.Unmarshal(cur, &prev) == nil && prev.Timestamp > ev.Timestamp {
			return false, nil
		}
	} else if !pebblestore.IsNotFound(err) {
		return false, fmt.Errorf("read latest state: %w", err)
	}

	val, err := json.Marshal(State{SourceID: ev.SourceID, Timestamp: ev.Timestamp, Metrics: ev.Metrics})
	if err != nil {
		return false, fmt.Errorf("encode latest state: %w", err)
	}
	if err := c.db.Set(k, val); err != nil {
		return false, fmt.Errorf("write latest state: %w", err)
	}
	return true, nil
}

// Get returns the stored state for a source, or found=false when the source
// has never been seen.
func (c *Cache) Get(sourceID string) (State, bool, error) {
	val, err := c.db.Get(key(sourceID))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read latest state: %w", err)
	}
	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return State{}, false, fmt.Errorf("decode latest state: %w", err)
	}
	return st, true, nil
}

// All returns every source's latest state, ordered by source id.
func (c *Cache) All() ([]State, error) {
	low := []byte(keyPrefix)
	hi := append(append([]byte{}, low...), 0xFF)
	iter, err := c.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("scan latest states: %w", err)
	}
	defer iter.Close()

	var out []State
	for ok := iter.First(); ok; ok = iter.Next() {
		var st State
		if json.Unmarshal(iter.Value(), &st) != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}
