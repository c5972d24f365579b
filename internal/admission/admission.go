// Package admission implements the concurrency cap on live pipeline
// invocations described in spec 4.I: a counting semaphore with a bounded
// wait queue, rejecting with KindAdmission once that queue is full rather
// than letting requests pile up unbounded.
//
// Grounded on the teacher's internal/auth/auth.go Incr/Expire counter-gate
// idiom (acquire-before, reject-over-capacity), adapted here to
// golang.org/x/sync/semaphore.Weighted since the gate is concurrency
// capacity rather than a sliding request-rate window.
package admission

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jonaylor89/freqmoda/internal/apperr"
)

// Gate admits up to capacity concurrent pipeline invocations. Requests
// arriving once capacity is exhausted wait, up to queueDepth of them at a
// time; beyond that, Acquire rejects immediately with KindAdmission.
type Gate struct {
	sem        *semaphore.Weighted
	queueDepth int64
	waiting    int64
}

// New constructs a Gate. capacity <= 0 behaves as 1 (never fully disables
// admission). queueDepth <= 0 disables queueing: every request beyond
// capacity is rejected immediately.
func New(capacity, queueDepth int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), queueDepth: int64(queueDepth)}
}

// Acquire blocks until a slot is free or ctx is cancelled. If the wait queue
// is already at its configured depth, Acquire rejects immediately instead of
// joining it, per spec 4.I's "reject rather than enqueue further" rule.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.queueDepth <= 0 {
		if !g.sem.TryAcquire(1) {
			return nil, apperr.New(apperr.KindAdmission, fmt.Errorf("admission at capacity"))
		}
	} else {
		if atomic.LoadInt64(&g.waiting) >= g.queueDepth {
			return nil, apperr.New(apperr.KindAdmission, fmt.Errorf("admission queue full"))
		}

		atomic.AddInt64(&g.waiting, 1)
		err := g.sem.Acquire(ctx, 1)
		atomic.AddInt64(&g.waiting, -1)
		if err != nil {
			return nil, apperr.New(apperr.KindAdmission, fmt.Errorf("admission wait: %w", err))
		}
	}

	released := int32(0)
	return func() {
		if atomic.CompareAndSwapInt32(&released, 0, 1) {
			g.sem.Release(1)
		}
	}, nil
}

// Waiting reports the current wait-queue depth, for tests and metrics.
func (g *Gate) Waiting() int { return int(atomic.LoadInt64(&g.waiting)) }
