// Package fetch de-duplicates and sequences the collaborator calls that populate
// the directory store and the permission cache.
package fetch

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go-fleet-console/internal/obs"
)

// Sequencer tags requests for one slot with increasing numbers. Only the most
// recently issued request may commit, and never after a newer one already did.
type Sequencer struct {
	mu        sync.Mutex
	latest    uint64
	applied   uint64
	latestFor string // call key of the latest request, empty when issued by Next
}

// Next issues a new sequence number, superseding every earlier one
func (s *Sequencer) Next() uint64 {
	return s.issue("")
}

func (s *Sequencer) issue(callKey string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.latestFor = callKey
	return s.latest
}

// latestIs reports whether the latest request was issued for callKey
func (s *Sequencer) latestIs(callKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return callKey != "" && s.latestFor == callKey
}

// Commit runs fn under the sequencer lock if seq is still current and reports
// whether it ran
func (s *Sequencer) Commit(seq uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.latest || seq <= s.applied {
		return false
	}
	fn()
	s.applied = seq
	return true
}

func (s *Sequencer) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Sequencer) Applied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Coordinator owns one Sequencer per slot ("departments", "search", ...) and a
// singleflight group keyed by the full request identity
type Coordinator struct {
	group   singleflight.Group
	mu      sync.Mutex
	slots   map[string]*Sequencer
	gens    map[string]uint64
	logger  *zap.Logger
	metrics *obs.Metrics
}

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		slots:  make(map[string]*Sequencer),
		gens:   make(map[string]uint64),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sequencer returns the sequencer for slot, creating it on first use
func (c *Coordinator) Sequencer(slot string) *Sequencer {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.slots[slot]
	if !ok {
		seq = &Sequencer{}
		c.slots[slot] = seq
	}
	return seq
}

// Forget makes later Fetch calls for slot and key start a new call instead of
// joining one already in flight. Use it when the result must reflect a write
// that completed after the in-flight call was sent.
func (c *Coordinator) Forget(slot, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[slot+"|"+key]++
}

func (c *Coordinator) callKey(slot, key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := slot + "|" + key
	if gen := c.gens[k]; gen > 0 {
		k += "#" + strconv.FormatUint(gen, 10)
	}
	return k
}

// Fetch issues a request in slot. Concurrent calls with the same key share one
// call to fn. The result reaches commit only if no newer request was issued for
// slot meanwhile; otherwise Fetch returns false and a nil error.
//
// fn runs detached from ctx cancellation so one caller giving up does not fail
// the others waiting on the same key. Each caller stops waiting when its own ctx ends.
func Fetch[T any](ctx context.Context, c *Coordinator, slot, key string, fn func(context.Context) (T, error), commit func(T)) (bool, error) {
	seqr := c.Sequencer(slot)
	callKey := c.callKey(slot, key)
	seq := seqr.issue(callKey)

	ch := c.group.DoChan(callKey, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res = <-ch:
	}

	if res.Shared {
		c.metrics.Deduplicated(slot)
	}

	if res.Err != nil {
		if seq != seqr.Latest() {
			c.discard(slot, key, callKey, seq, seqr, res.Shared)
			return false, nil
		}
		return false, res.Err
	}

	val, _ := res.Val.(T)
	if !seqr.Commit(seq, func() { commit(val) }) {
		c.discard(slot, key, callKey, seq, seqr, res.Shared)
		return false, nil
	}
	return true, nil
}

// discard drops a superseded result. A shared result whose newest waiter is the
// latest request is handed to that waiter and not counted as stale.
func (c *Coordinator) discard(slot, key, callKey string, seq uint64, seqr *Sequencer, shared bool) {
	if shared && seqr.latestIs(callKey) {
		c.logger.Debug("shared response left to newer waiter",
			zap.String("slot", slot),
			zap.String("key", key),
			zap.Uint64("seq", seq),
		)
		return
	}
	c.metrics.StaleDiscarded(slot)
	c.logger.Debug("stale response discarded",
		zap.String("slot", slot),
		zap.String("key", key),
		zap.Uint64("seq", seq),
		zap.Uint64("latest", seqr.Latest()),
	)
}
