package callslot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquireFreeSlot(t *testing.T) {
	var a Arbiter
	lease, err := a.Acquire(context.Background(), PriorityLiveWatch)
	require.NoError(t, err)
	assert.True(t, a.Busy())
	assert.False(t, lease.Preempted())
	lease.Release()
	assert.False(t, a.Busy())
}

func TestHigherPriorityPreemptsHolder(t *testing.T) {
	var a Arbiter
	low, err := a.Acquire(context.Background(), PriorityLiveWatch)
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		high, err := a.Acquire(context.Background(), PriorityInteractive)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- high
	}()

	// The holder sees preemption before the claimant is granted.
	select {
	case <-low.Context().Done():
		assert.ErrorIs(t, context.Cause(low.Context()), ErrPreempted)
		assert.True(t, low.Preempted())
	case <-time.After(2 * time.Second):
		t.Fatal("holder was never preempted")
	}

	// The claimant only proceeds after the holder releases.
	select {
	case <-acquired:
		t.Fatal("claimant granted before holder released")
	case <-time.After(50 * time.Millisecond):
	}

	low.Release()
	select {
	case high := <-acquired:
		require.NotNil(t, high)
		high.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("claimant never granted after release")
	}

	assert.Equal(t, int64(1), a.Stats().TotalPreempted)
}

func TestEqualPriorityWaitsWithoutPreempting(t *testing.T) {
	var a Arbiter
	first, err := a.Acquire(context.Background(), PriorityLiveWatch)
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		second, err := a.Acquire(context.Background(), PriorityLiveWatch)
		if err == nil {
			acquired <- second
		}
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, first.Preempted())

	first.Release()
	select {
	case second := <-acquired:
		second.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second claimant never granted")
	}
}

func TestTryAcquireSkipsWhenHeld(t *testing.T) {
	var a Arbiter
	lease, err := a.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)

	_, ok := a.TryAcquire(context.Background(), PriorityLiveWatch)
	assert.False(t, ok)
	assert.Equal(t, int64(1), a.Stats().TotalSkipped)

	lease.Release()
	got, ok := a.TryAcquire(context.Background(), PriorityLiveWatch)
	require.True(t, ok)
	got.Release()
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	var a Arbiter
	holder, err := a.Acquire(context.Background(), PriorityLiveWatch)
	require.NoError(t, err)
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx, PriorityLiveWatch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIsIdempotent(t *testing.T) {
	var a Arbiter
	lease, err := a.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	assert.False(t, a.Busy())
}
