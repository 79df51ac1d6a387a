package consumergroup

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/pulsegrid/pulsegrid/internal/eventlog"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
)

// DefaultClaimTimeout is how long a claim stays owned by a consumer before
// it becomes reclaimable by the rest of the group.
const DefaultClaimTimeout = 30 * time.Second

// Options tunes group behavior.
type Options struct {
	// ClaimTimeout is the lease duration for a polled entry. Zero uses
	// DefaultClaimTimeout.
	ClaimTimeout time.Duration
}

// Delivery is one claimed log entry handed to a consumer.
type Delivery struct {
	Seq      uint64
	IngestMs int64
	Payload  []byte
	// Deliveries counts attempts including this one; >1 means redelivery.
	Deliveries uint32
}

// Groups coordinates consumer groups over a single event log.
type Groups struct {
	db           *pebblestore.DB
	log          *eventlog.Log
	claimTimeout time.Duration

	// serializes cursor/claim read-modify-write across in-process consumers
	mu sync.Mutex
}

// New builds a Groups facade over the given log.
func New(db *pebblestore.DB, log *eventlog.Log, opts Options) *Groups {
	ct := opts.ClaimTimeout
	if ct <= 0 {
		ct = DefaultClaimTimeout
	}
	return &Groups{db: db, log: log, claimTimeout: ct}
}

// Ensure creates the group cursor if absent. Idempotent: an existing group
// is a no-op, not an error.
func (g *Groups) Ensure(_ context.Context, group string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := keyCursor(group)
	if _, err := g.db.Get(key); err == nil {
		return nil
	} else if !pebblestore.IsNotFound(err) {
		return fmt.Errorf("read group cursor: %w", err)
	}
	var zero [8]byte
	if err := g.db.Set(key, zero[:]); err != nil {
		return fmt.Errorf("init group cursor: %w", err)
	}
	return nil
}

// Poll returns up to maxBatch deliveries for the consumer: expired claims
// first (redelivery), then fresh entries past the group cursor. When nothing
// is available it blocks on the log's append notification up to blockTimeout
// and returns an empty batch on timeout. nowMs <= 0 uses the wall clock.
func (g *Groups) Poll(ctx context.Context, group, consumer string, maxBatch int, blockTimeout time.Duration, nowMs int64) ([]Delivery, error) {
	if maxBatch <= 0 {
		maxBatch = 1
	}
	if err := g.Ensure(ctx, group); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(blockTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := nowMs
		if now <= 0 {
			now = time.Now().UnixMilli()
		}
		out, err := g.pollOnce(ctx, group, consumer, maxBatch, now)
		if err != nil || len(out) > 0 {
			return out, err
		}
		if blockTimeout <= 0 {
			return nil, nil
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, nil
		}
		if !g.log.WaitForAppend(remain) {
			return nil, nil
		}
	}
}

func (g *Groups) pollOnce(ctx context.Context, group, consumer string, maxBatch int, nowMs int64) ([]Delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.db.NewBatch()
	defer b.Close()

	out := make([]Delivery, 0, maxBatch)
	expiry := nowMs + g.claimTimeout.Milliseconds()

	// 1) reclaim expired claims for redelivery
	if err := g.reclaimExpired(b, group, consumer, maxBatch, nowMs, expiry, &out); err != nil {
		return nil, err
	}

	// 2) claim fresh entries past the cursor
	if len(out) < maxBatch {
		cursor := g.readCursor(group)
		items, _ := g.log.Read(eventlog.ReadOptions{Start: eventlog.TokenFromSeq(cursor + 1), Limit: maxBatch - len(out)})
		for _, it := range items {
			if err := b.Set(keyClaim(group, it.Seq), encodeClaim(expiry, 1, consumer), nil); err != nil {
				return nil, err
			}
			if err := b.Set(keyClaimIdx(group, expiry, it.Seq), nil, nil); err != nil {
				return nil, err
			}
			out = append(out, Delivery{Seq: it.Seq, IngestMs: it.IngestMs, Payload: it.Payload, Deliveries: 1})
			cursor = it.Seq
		}
		if len(items) > 0 {
			var cur [8]byte
			binary.BigEndian.PutUint64(cur[:], cursor)
			if err := b.Set(keyCursor(group), cur[:], nil); err != nil {
				return nil, err
			}
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	if err := g.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("commit poll claims: %w", err)
	}
	return out, nil
}

// reclaimExpired scans the claim expiry index and re-leases expired entries
// to the polling consumer, bumping the delivery count.
func (g *Groups) reclaimExpired(b *pebble.Batch, group, consumer string, maxBatch int, nowMs, newExpiry int64, out *[]Delivery) error {
	prefix := claimIdxPrefix(group)
	iter, err := g.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil
	}
	defer iter.Close()

	for ok := iter.First(); ok && len(*out) < maxBatch; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix)+16 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if exp > nowMs {
			// index is expiry-ordered; nothing further is expired
			break
		}
		seq := binary.BigEndian.Uint64(k[len(k)-8:])

		val, errGet := g.db.Get(keyClaim(group, seq))
		if errGet != nil {
			// orphaned index entry (claim acked); drop it
			_ = b.Delete(k, nil)
			continue
		}
		claimExp, deliveries, _, okDec := decodeClaim(val)
		if !okDec || claimExp != exp {
			// stale index row for a re-leased claim
			_ = b.Delete(k, nil)
			continue
		}

		it, errEntry := g.log.Get(seq)
		if errEntry != nil {
			// entry trimmed away underneath the claim; drop the claim
			_ = b.Delete(k, nil)
			_ = b.Delete(keyClaim(group, seq), nil)
			continue
		}

		if err := b.Delete(k, nil); err != nil {
			return err
		}
		if err := b.Set(keyClaim(group, seq), encodeClaim(newExpiry, deliveries+1, consumer), nil); err != nil {
			return err
		}
		if err := b.Set(keyClaimIdx(group, newExpiry, seq), nil, nil); err != nil {
			return err
		}
		*out = append(*out, Delivery{Seq: seq, IngestMs: it.IngestMs, Payload: it.Payload, Deliveries: deliveries + 1})
	}
	return nil
}

// Ack releases the claim on seq. Acking an unclaimed entry is a no-op so a
// redelivered-and-completed entry can be safely acked twice.
func (g *Groups) Ack(ctx context.Context, group string, seq uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	val, err := g.db.Get(keyClaim(group, seq))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("read claim: %w", err)
	}
	expiry, _, _, ok := decodeClaim(val)

	b := g.db.NewBatch()
	defer b.Close()
	if err := b.Delete(keyClaim(group, seq), nil); err != nil {
		return err
	}
	if ok {
		if err := b.Delete(keyClaimIdx(group, expiry, seq), nil); err != nil {
			return err
		}
	}
	if err := g.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("commit ack: %w", err)
	}
	return nil
}

// PendingCount returns the number of live (claimed, unacked) entries in
// the group. Used by stats and tests.
func (g *Groups) PendingCount(group string) int {
	prefix := append(groupPrefix(group), "claim/"...)
	iter, err := g.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n
}

func (g *Groups) readCursor(group string) uint64 {
	cur, err := g.db.Get(keyCursor(group))
	if err != nil || len(cur) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(cur[:8])
}
