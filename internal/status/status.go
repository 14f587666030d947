// Package status defines the progress and notification surfaces the core
// exposes to the UI shell. The shell consumes these; the core never blocks
// on them.
package status

import (
	"deskpilot/internal/logging"
)

// Phase identifies where a loop currently is. Automation and live-watch
// phases share one namespace so a single sink can display both.
type Phase string

// Automation loop phases.
const (
	PhaseStart          Phase = "start"
	PhaseCapturing      Phase = "capturing"
	PhaseCaptured       Phase = "captured"
	PhasePlanning       Phase = "planning"
	PhasePlanningTarget Phase = "planning_target"
	PhasePlanReady      Phase = "plan_ready"
	PhaseStepStart      Phase = "step_start"
	PhaseStepDone       Phase = "step_done"
	PhaseUnreadScan     Phase = "unread_scan"
	PhaseMCPFallback    Phase = "mcp_fallback"
	PhaseDone           Phase = "done"
	PhaseFinalizing     Phase = "finalizing"
	PhaseResult         Phase = "result"
	PhaseError          Phase = "error"
	PhasePaused         Phase = "paused"
)

// Live-watch phases.
const (
	PhaseStarted     Phase = "started"
	PhaseStopped     Phase = "stopped"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseCollecting  Phase = "collecting"
	PhaseSummarizing Phase = "summarizing"
	PhaseIdle        Phase = "idle"
	PhaseNotified    Phase = "notified"
	PhaseFocus       Phase = "focus"
	PhaseConfig      Phase = "config"
)

// Severity grades a notification.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
)

// Event is one structured progress update.
type Event struct {
	Phase  Phase
	Fields map[string]interface{}
}

// StatusSink receives progress events. Implementations must not block.
type StatusSink interface {
	Emit(Event)
}

// NotificationSink receives user-visible notifications, fire-and-forget.
type NotificationSink interface {
	Notify(text string, severity Severity)
}

// Fanout forwards each event to every wrapped sink.
type Fanout []StatusSink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		s.Emit(ev)
	}
}

// LogSink writes events to the category logger. Useful as a default sink
// when no UI shell is attached.
type LogSink struct {
	Category logging.Category
}

func (s LogSink) Emit(ev Event) {
	cat := s.Category
	if cat == "" {
		cat = logging.CategoryBoot
	}
	args := make([]interface{}, 0, len(ev.Fields)*2+2)
	args = append(args, "phase", string(ev.Phase))
	for k, v := range ev.Fields {
		args = append(args, k, v)
	}
	logging.Get(cat).Infow("status", args...)
}

func (s LogSink) Notify(text string, severity Severity) {
	logging.Get(logging.CategoryLiveWatch).Infow("notification", "severity", string(severity), "text", text)
}

// ChannelSink delivers events to a buffered channel, dropping on overflow
// so a slow consumer can never stall a loop round.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 50
	}
	return &ChannelSink{C: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ev Event) {
	select {
	case s.C <- ev:
	default:
		logging.Get(logging.CategoryBoot).Warnw("dropping status event (slow consumer)", "phase", string(ev.Phase))
	}
}
