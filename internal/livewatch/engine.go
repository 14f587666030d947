// Package livewatch implements the change-triggered screen observer: a
// self-rescheduling sampling loop that buffers frames, decides when a
// model analysis is worth its cost, and raises deduplicated notifications.
package livewatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"deskpilot/internal/backend"
	"deskpilot/internal/callslot"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"
	"deskpilot/internal/logging"
	"deskpilot/internal/status"
)

// ErrAlreadyRunning is returned by Start when the engine is running.
var ErrAlreadyRunning = errors.New("live watch already running")

// ErrUserMessage is the cancel cause used when a new user message
// supersedes an in-flight analysis call.
var ErrUserMessage = errors.New("superseded by user message")

// dialogEntry is one line of the rolling transcript.
type dialogEntry struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

// memoryEntry is one fact on the rolling visual-memory timeline.
type memoryEntry struct {
	Key  string
	Text string
	At   time.Time
}

// frameRecord is one buffered capture.
type frameRecord struct {
	Data   []byte
	MIME   string
	Hash   string
	App    string
	Window string
	At     time.Time
}

// Engine owns all live-watch state. Construct with NewEngine; one Engine
// runs at most one sampling loop.
type Engine struct {
	Grabber *capture.Grabber
	Backend backend.Backend
	Arbiter *callslot.Arbiter
	Status  status.StatusSink
	Notify  status.NotificationSink

	mu  sync.Mutex
	cfg config.LiveWatchConfig

	running bool
	busy    bool
	cancel  context.CancelFunc
	timer   *time.Timer
	loopWG  sync.WaitGroup

	// cancelCall aborts the in-flight model call, nil when none.
	cancelCall context.CancelCauseFunc

	dialog []dialogEntry
	memory []memoryEntry
	frames []frameRecord

	prevSig             *capture.Signature
	noChangeStreak      int
	framesSinceAnalysis int
	textRounds          int
	visionRan           bool

	forced        bool
	lastUserText  string
	lastUserAt    time.Time
	pendingShort  bool
	focusHint     string
	lastReplyText string

	lastNotifyKey    string
	lastNotifyAt     time.Time
	lastSummaryKey   string
	lastSummaryAt    time.Time
	lastQuestion     string
	lastQuestionAt   time.Time
	lastNotifiedText string
}

// NewEngine creates a stopped engine with the given (clamped) config.
func NewEngine(cfg config.LiveWatchConfig) *Engine {
	cfg.Clamp()
	return &Engine{cfg: cfg}
}

// Start launches the sampling loop. Returns ErrAlreadyRunning when the
// loop is active.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.timer = time.NewTimer(e.cfg.Interval)
	e.loopWG.Add(1)
	e.mu.Unlock()

	e.emit(status.PhaseStarted, nil)
	logging.Get(logging.CategoryLiveWatch).Infow("live watch started", "interval", e.cfg.Interval)

	go func() {
		defer e.loopWG.Done()
		e.loop(ctx)
	}()
	return nil
}

// Stop halts the loop and any in-flight call, then waits for the loop
// goroutine to exit. Safe to call when stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	if e.cancelCall != nil {
		e.cancelCall(context.Canceled)
	}
	e.mu.Unlock()

	cancel()
	e.loopWG.Wait()
	e.emit(status.PhaseStopped, nil)
	logging.Get(logging.CategoryLiveWatch).Infow("live watch stopped")
}

// Reset clears all rolling state: buffers, counters, dedupe history. The
// loop (if running) keeps its schedule.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dialog = nil
	e.memory = nil
	e.frames = nil
	e.prevSig = nil
	e.noChangeStreak = 0
	e.framesSinceAnalysis = 0
	e.textRounds = 0
	e.visionRan = false
	e.forced = false
	e.lastUserText = ""
	e.lastUserAt = time.Time{}
	e.lastNotifyKey = ""
	e.lastNotifyAt = time.Time{}
	e.lastSummaryKey = ""
	e.lastSummaryAt = time.Time{}
	e.lastQuestion = ""
	e.lastQuestionAt = time.Time{}
	e.lastNotifiedText = ""
}

// UserMessage injects user text: appends it to the dialog, forces the
// next analysis, aborts any in-flight call, and reschedules at the short
// delay. A user message always outranks a stale analysis.
func (e *Engine) UserMessage(text string) {
	e.mu.Lock()
	now := time.Now()
	e.appendDialogLocked(dialogEntry{Role: "user", Text: text, At: now})
	e.lastUserText = text
	e.lastUserAt = now
	e.forced = true
	e.pendingShort = true
	if e.cancelCall != nil {
		e.cancelCall(ErrUserMessage)
	}
	running := e.running
	delay := e.cfg.UserMessageDelay
	timer := e.timer
	e.mu.Unlock()

	if running && timer != nil {
		resetTimer(timer, delay)
	}
	logging.Get(logging.CategoryLiveWatch).Debugw("user message injected", "forced", true)
}

// SetFocus records a user focus hint embedded in subsequent prompts.
func (e *Engine) SetFocus(hint string) {
	e.mu.Lock()
	e.focusHint = hint
	e.mu.Unlock()
	e.emit(status.PhaseFocus, map[string]interface{}{"hint": hint})
}

// UpdateConfig applies a new configuration to a running engine. Values
// pass through the same range clamps as at load time.
func (e *Engine) UpdateConfig(cfg config.LiveWatchConfig) {
	cfg.Clamp()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.emit(status.PhaseConfig, map[string]interface{}{"interval": cfg.Interval.String()})
}

// Running reports whether the sampling loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) loop(ctx context.Context) {
	for {
		e.mu.Lock()
		timer := e.timer
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e.round(ctx)

		e.mu.Lock()
		delay := e.cfg.Interval
		if e.pendingShort {
			delay = e.cfg.UserMessageDelay
			e.pendingShort = false
		}
		running := e.running
		e.mu.Unlock()
		if !running {
			return
		}
		resetTimer(timer, delay)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (e *Engine) appendDialogLocked(entry dialogEntry) {
	e.dialog = append(e.dialog, entry)
	if over := len(e.dialog) - e.cfg.DialogCap; over > 0 {
		e.dialog = e.dialog[over:]
	}
}

func (e *Engine) appendMemoryLocked(entry memoryEntry) {
	for _, m := range e.memory {
		if m.Key == entry.Key {
			return
		}
	}
	e.memory = append(e.memory, entry)
	if over := len(e.memory) - e.cfg.MemoryCap; over > 0 {
		e.memory = e.memory[over:]
	}
}

func (e *Engine) appendFrameLocked(f frameRecord) {
	e.frames = append(e.frames, f)
	if over := len(e.frames) - e.cfg.MaxImageFrames; over > 0 {
		e.frames = e.frames[over:]
	}
}

func (e *Engine) emit(phase status.Phase, fields map[string]interface{}) {
	if e.Status == nil {
		return
	}
	e.Status.Emit(status.Event{Phase: phase, Fields: fields})
}
