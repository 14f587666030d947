// Package callslot arbitrates the single outbound model-call slot shared
// by the interactive automation path and the live-watch engine. A
// higher-priority claimant preempts the current holder: the holder's lease
// context is cancelled with ErrPreempted and the claimant waits for the
// release before proceeding, so two requests are never in flight on the
// same model connection simultaneously.
package callslot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"deskpilot/internal/logging"
)

// Standard priorities. Interactive work outranks ambient watching.
const (
	PriorityInteractive = 100
	PriorityLiveWatch   = 60
)

// ErrPreempted is the cancel cause installed on a preempted lease's
// context. Loop state machines treat it as benign.
var ErrPreempted = errors.New("model call preempted by higher-priority request")

// Lease is a granted hold on the call slot. The holder runs its model
// call under Context, which is cancelled with ErrPreempted when a
// higher-priority claimant arrives.
type Lease struct {
	arb      *Arbiter
	priority int
	ctx      context.Context
	cancel   context.CancelCauseFunc
	once     sync.Once
}

// Context returns the lease-scoped context.
func (l *Lease) Context() context.Context { return l.ctx }

// Priority returns the priority the lease was acquired at.
func (l *Lease) Priority() int { return l.priority }

// Preempted reports whether the lease has been preempted.
func (l *Lease) Preempted() bool {
	return context.Cause(l.ctx) == ErrPreempted
}

// Release returns the slot. Idempotent.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.cancel(nil)
		l.arb.release(l)
	})
}

type waiter struct {
	priority  int
	ready     chan *Lease
	abandoned bool
}

// Arbiter owns the slot. The zero value is ready to use.
type Arbiter struct {
	mu      sync.Mutex
	holder  *Lease
	waiters []*waiter

	totalAcquired  int64
	totalPreempted int64
	totalSkipped   int64
}

// Acquire blocks until the slot is granted or ctx ends. A claimant whose
// priority exceeds the current holder's signals preemption immediately;
// it still waits for the holder to release before being granted.
func (a *Arbiter) Acquire(ctx context.Context, priority int) (*Lease, error) {
	a.mu.Lock()
	if a.holder == nil && len(a.waiters) == 0 {
		lease := a.grantLocked(ctx, priority)
		a.mu.Unlock()
		return lease, nil
	}

	if a.holder != nil && priority > a.holder.priority {
		atomic.AddInt64(&a.totalPreempted, 1)
		logging.Get(logging.CategorySlot).Debugw("preempting slot holder",
			"holder_priority", a.holder.priority, "claimant_priority", priority)
		a.holder.cancel(ErrPreempted)
	}

	w := &waiter{priority: priority, ready: make(chan *Lease, 1)}
	a.insertWaiterLocked(w)
	a.mu.Unlock()

	select {
	case lease := <-w.ready:
		return lease, nil
	case <-ctx.Done():
		a.mu.Lock()
		w.abandoned = true
		a.mu.Unlock()
		// The grant may have raced the cancellation; if it did, hand the
		// slot straight back.
		select {
		case lease := <-w.ready:
			lease.Release()
		default:
		}
		return nil, ctx.Err()
	}
}

// TryAcquire grants the slot only when it is free and uncontended. The
// live-watch loop uses this to skip a round instead of queueing behind
// interactive work.
func (a *Arbiter) TryAcquire(ctx context.Context, priority int) (*Lease, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != nil || len(a.waiters) > 0 {
		atomic.AddInt64(&a.totalSkipped, 1)
		return nil, false
	}
	return a.grantLocked(ctx, priority), true
}

// Busy reports whether the slot is currently held.
func (a *Arbiter) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder != nil
}

func (a *Arbiter) grantLocked(ctx context.Context, priority int) *Lease {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{arb: a, priority: priority, ctx: leaseCtx, cancel: cancel}
	a.holder = lease
	atomic.AddInt64(&a.totalAcquired, 1)
	return lease
}

// insertWaiterLocked keeps waiters sorted by priority descending; equal
// priorities stay FIFO so the live-watch loop is not starved forever.
func (a *Arbiter) insertWaiterLocked(w *waiter) {
	pos := len(a.waiters)
	for i, other := range a.waiters {
		if w.priority > other.priority {
			pos = i
			break
		}
	}
	a.waiters = append(a.waiters, nil)
	copy(a.waiters[pos+1:], a.waiters[pos:])
	a.waiters[pos] = w
}

func (a *Arbiter) release(l *Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != l {
		return
	}
	a.holder = nil

	for len(a.waiters) > 0 {
		w := a.waiters[0]
		a.waiters = a.waiters[1:]
		if w.abandoned {
			continue
		}
		// The waiter's own context governs its lease; use Background as
		// the base because the waiter re-selects on its context anyway.
		lease := a.grantLocked(context.Background(), w.priority)
		w.ready <- lease
		return
	}
}

// Metrics is a snapshot of arbiter counters.
type Metrics struct {
	TotalAcquired  int64
	TotalPreempted int64
	TotalSkipped   int64
}

// Stats returns current counters.
func (a *Arbiter) Stats() Metrics {
	return Metrics{
		TotalAcquired:  atomic.LoadInt64(&a.totalAcquired),
		TotalPreempted: atomic.LoadInt64(&a.totalPreempted),
		TotalSkipped:   atomic.LoadInt64(&a.totalSkipped),
	}
}
