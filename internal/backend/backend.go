// Package backend abstracts "ask the model" over interchangeable
// providers: the Anthropic HTTP API, the Gemini API, and a local Claude
// CLI subprocess. All providers accept optional image attachments and
// honor context cancellation; callers distinguish timeouts, rate limits,
// and preemption through error types.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Attachment is one image sent with a prompt.
type Attachment struct {
	Data []byte
	MIME string
}

// ConverseRequest is one model call.
type ConverseRequest struct {
	System string
	Prompt string
	Images []Attachment
	// Timeout bounds the call; zero means the backend default.
	Timeout time.Duration
	// Priority is recorded for slot arbitration by the slotted wrapper.
	Priority int
}

// Backend is the model abstraction both control loops call.
type Backend interface {
	Name() string
	SupportsVision() bool
	Converse(ctx context.Context, req ConverseRequest) (string, error)
}

// RateLimitError indicates the provider returned a rate limit response.
// Callers can use errors.As to detect it and back off.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// TimeoutError distinguishes an elapsed call bound from other failures.
type TimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out after %v", e.Provider, e.Elapsed)
}

// callContext applies the request timeout over ctx.
func callContext(ctx context.Context, req ConverseRequest, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyCtxErr converts a context error at the end of a call into the
// error the loops expect: deadline becomes a TimeoutError, cancellation
// passes through so preemption/pause causes stay visible.
func classifyCtxErr(ctx context.Context, provider string, started time.Time) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return &TimeoutError{Provider: provider, Elapsed: time.Since(started).Round(time.Millisecond)}
	case context.Canceled:
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			return cause
		}
		return context.Canceled
	default:
		return nil
	}
}
