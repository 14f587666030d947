package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"deskpilot/internal/callslot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicConverse(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "  hello  "}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := c.Converse(context.Background(), ConverseRequest{
		Prompt: "hi",
		Images: []Attachment{{Data: []byte{1, 2, 3}, MIME: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	require.Len(t, gotReq.Messages, 1)
	require.Len(t, gotReq.Messages[0].Content, 2)
	assert.Equal(t, "image", gotReq.Messages[0].Content[0].Type)
	assert.Equal(t, "image/png", gotReq.Messages[0].Content[0].Source.MediaType)
	assert.Equal(t, "text", gotReq.Messages[0].Content[1].Type)
}

func TestAnthropicRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Converse(context.Background(), ConverseRequest{Prompt: "hi"})
	var rl *RateLimitError
	assert.ErrorAs(t, err, &rl)
}

func TestAnthropicErrorEnvelopeExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"image too large"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Converse(context.Background(), ConverseRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image too large")
}

func TestAnthropicTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Converse(context.Background(), ConverseRequest{Prompt: "hi", Timeout: 50 * time.Millisecond})
	var te *TimeoutError
	assert.ErrorAs(t, err, &te)
}

func TestClaudeCLIParseResponse(t *testing.T) {
	c := NewClaudeCLIClient(ClaudeCLIConfig{})

	out, err := c.parseResponse([]byte(`{"result": "done deal"}`))
	require.NoError(t, err)
	assert.Equal(t, "done deal", out)

	_, err = c.parseResponse([]byte(`{"is_rate_limited": true}`))
	var rl *RateLimitError
	assert.ErrorAs(t, err, &rl)

	_, err = c.parseResponse([]byte(`{"error":{"type":"x","message":"boom"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// Plain-text output from older CLI builds passes through.
	out, err = c.parseResponse([]byte("plain answer"))
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out)

	_, err = c.parseResponse([]byte(""))
	assert.Error(t, err)
}

type stubBackend struct {
	delay  time.Duration
	calls  int64
	result string
}

func (s *stubBackend) Name() string         { return "stub" }
func (s *stubBackend) SupportsVision() bool { return true }
func (s *stubBackend) Converse(ctx context.Context, req ConverseRequest) (string, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				return "", cause
			}
			return "", ctx.Err()
		}
	}
	return s.result, nil
}

func TestSlottedPreemption(t *testing.T) {
	var arb callslot.Arbiter
	slow := &Slotted{Inner: &stubBackend{delay: 5 * time.Second, result: "slow"}, Arbiter: &arb}
	fast := &Slotted{Inner: &stubBackend{result: "fast"}, Arbiter: &arb}

	lowDone := make(chan error, 1)
	go func() {
		_, err := slow.Converse(context.Background(), ConverseRequest{
			Prompt: "watch", Priority: callslot.PriorityLiveWatch,
		})
		lowDone <- err
	}()

	// Let the low-priority call take the slot first.
	require.Eventually(t, arb.Busy, time.Second, 5*time.Millisecond)

	out, err := fast.Converse(context.Background(), ConverseRequest{
		Prompt: "ask", Priority: callslot.PriorityInteractive,
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", out)

	select {
	case err := <-lowDone:
		assert.ErrorIs(t, err, callslot.ErrPreempted)
	case <-time.After(2 * time.Second):
		t.Fatal("preempted call never returned")
	}
}

func TestSlottedSerializesCalls(t *testing.T) {
	var arb callslot.Arbiter
	inner := &stubBackend{result: "ok"}
	b := &Slotted{Inner: inner, Arbiter: &arb}

	for i := 0; i < 3; i++ {
		out, err := b.Converse(context.Background(), ConverseRequest{Prompt: "x", Priority: callslot.PriorityInteractive})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(&inner.calls))
	assert.False(t, arb.Busy())
}
