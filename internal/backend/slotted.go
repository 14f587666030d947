package backend

import (
	"context"

	"deskpilot/internal/callslot"
)

// Slotted routes every Converse through the call-slot arbiter so only one
// model request is ever in flight, and a higher-priority caller preempts a
// lower-priority one mid-call.
type Slotted struct {
	Inner   Backend
	Arbiter *callslot.Arbiter
}

var _ Backend = (*Slotted)(nil)

func (s *Slotted) Name() string         { return s.Inner.Name() }
func (s *Slotted) SupportsVision() bool { return s.Inner.SupportsVision() }

// Converse acquires the slot at the request priority, runs the inner call
// under a context that also dies on preemption, and releases the slot.
// A preempted call returns callslot.ErrPreempted as its cause.
func (s *Slotted) Converse(ctx context.Context, req ConverseRequest) (string, error) {
	lease, err := s.Arbiter.Acquire(ctx, req.Priority)
	if err != nil {
		return "", err
	}
	defer lease.Release()

	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(lease.Context(), func() {
		cancel(context.Cause(lease.Context()))
	})
	defer stop()

	return s.Inner.Converse(callCtx, req)
}
