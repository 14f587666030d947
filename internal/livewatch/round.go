package livewatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deskpilot/internal/backend"
	"deskpilot/internal/callslot"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"
	"deskpilot/internal/logging"
	"deskpilot/internal/observe"
	"deskpilot/internal/status"
)

// stillWorkingReply answers a forced round when the model declined to
// notify: a user question must never be silently dropped.
const stillWorkingReply = "I'm still working on it, give me a moment."

// round runs one complete sampling round. It completes fully, including
// notification emission, before the loop schedules the next capture.
func (e *Engine) round(ctx context.Context) {
	e.mu.Lock()
	if e.busy || !e.running {
		e.mu.Unlock()
		return
	}
	e.busy = true
	forced := e.forced
	cfg := e.cfg
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	log := logging.Get(logging.CategoryLiveWatch)

	// An interactive request holding the call slot outranks watching;
	// skip the whole round rather than queue behind it. Forced rounds
	// wait for the slot instead: they carry a user question.
	var lease *callslot.Lease
	if e.Arbiter != nil {
		if forced {
			var err error
			lease, err = e.Arbiter.Acquire(ctx, callslot.PriorityLiveWatch)
			if err != nil {
				return
			}
		} else {
			var ok bool
			lease, ok = e.Arbiter.TryAcquire(ctx, callslot.PriorityLiveWatch)
			if !ok {
				e.emit(status.PhaseIdle, map[string]interface{}{"reason": "channel busy"})
				return
			}
		}
		defer lease.Release()
	}

	c, err := e.Grabber.Capture(ctx)
	if err != nil {
		if benignErr(ctx, err) {
			return
		}
		e.emit(status.PhaseError, map[string]interface{}{"during": "capture", "error": err.Error()})
		log.Warnw("capture failed", "error", err)
		return
	}

	if c.AppName != "" && c.AppName == cfg.OwnAppName && !forced {
		e.emit(status.PhaseIdle, map[string]interface{}{"reason": "own ui frontmost"})
		return
	}

	e.mu.Lock()
	diff := capture.CompareSignatures(e.prevSig, c.Signature)
	e.prevSig = c.Signature
	changed := diff.Distance >= cfg.MinDiffDistance || diff.ChangedRatio >= cfg.MinDiffRatio
	if changed {
		e.noChangeStreak = 0
	} else {
		e.noChangeStreak++
	}
	e.appendFrameLocked(frameRecord{
		Data:   c.Data,
		MIME:   c.MIME,
		Hash:   c.ContentHash,
		App:    c.AppName,
		Window: c.WindowTitle,
		At:     c.Timestamp,
	})
	e.framesSinceAnalysis++
	skipAnalysis := !forced && !changed && e.framesSinceAnalysis < cfg.SummaryEveryFrames
	vision := e.Backend.SupportsVision() &&
		(forced || !e.visionRan || changed || e.textRounds >= cfg.TextRoundCap)
	var frames []frameRecord
	if !skipAnalysis && vision {
		frames = e.pickBatchFramesLocked(cfg)
	}
	e.mu.Unlock()

	if skipAnalysis {
		e.emit(status.PhaseCollecting, map[string]interface{}{
			"buffered": e.bufferedFrames(), "distance": diff.Distance,
		})
		return
	}

	mode := "incremental"
	if vision {
		mode = "vision"
		e.emit(status.PhaseAnalyzing, map[string]interface{}{"mode": mode, "frames": len(frames)})
	} else {
		e.emit(status.PhaseSummarizing, map[string]interface{}{"mode": mode})
	}

	raw, err := e.analyze(ctx, lease, cfg, c, diff, forced, vision, frames)
	if err != nil {
		if benignErr(ctx, err) {
			log.Debugw("analysis cancelled", "cause", err)
			return
		}
		e.emit(status.PhaseError, map[string]interface{}{"during": "analysis", "error": err.Error()})
		log.Warnw("analysis failed", "mode", mode, "error", err)
		return
	}

	obs := observe.Normalize(raw)
	e.applyObservation(c, diff, obs, forced, vision)
}

// benignErr reports whether a round error is cooperative cancellation or
// preemption rather than a real failure.
func benignErr(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, callslot.ErrPreempted) ||
		errors.Is(err, ErrUserMessage) ||
		errors.Is(context.Cause(ctx), callslot.ErrPreempted)
}

// analyze performs the model call for one round. The call context is held
// on the engine so UserMessage can abort it, and it also dies when the
// slot lease is preempted by a higher-priority caller.
func (e *Engine) analyze(ctx context.Context, lease *callslot.Lease, cfg config.LiveWatchConfig,
	c *capture.Capture, diff capture.Diff, forced, vision bool, frames []frameRecord) (string, error) {

	callCtx, cancel := context.WithCancelCause(ctx)
	if lease != nil {
		stop := context.AfterFunc(lease.Context(), func() {
			cancel(context.Cause(lease.Context()))
		})
		defer stop()
	}
	e.mu.Lock()
	e.cancelCall = cancel
	prompt := e.buildPromptLocked(cfg, c, diff, forced, vision, frames)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelCall = nil
		e.mu.Unlock()
		cancel(nil)
	}()

	req := backend.ConverseRequest{
		Prompt:   prompt,
		Timeout:  cfg.VisionTimeout,
		Priority: callslot.PriorityLiveWatch,
	}
	if vision {
		for _, f := range frames {
			req.Images = append(req.Images, backend.Attachment{Data: f.Data, MIME: f.MIME})
		}
	}
	return e.Backend.Converse(callCtx, req)
}

// applyObservation runs steps 9 through 13: forced override, memory and
// dialog updates, suppression, question dedupe, and delivery.
func (e *Engine) applyObservation(c *capture.Capture, diff capture.Diff, obs observe.Observation, forced, vision bool) {
	now := time.Now()
	log := logging.Get(logging.CategoryLiveWatch)

	if forced && !obs.ShouldNotify {
		obs.ShouldNotify = true
		if obs.Reply == "" {
			obs.Reply = stillWorkingReply
		}
	}

	e.mu.Lock()
	e.framesSinceAnalysis = 0
	if vision {
		e.visionRan = true
		e.textRounds = 0
	} else {
		e.textRounds++
	}
	if forced {
		e.forced = false
	}

	if obs.MemoryUpdate != "" {
		e.appendMemoryLocked(memoryEntry{
			Key:  observe.MemoryKey(c.AppName, c.WindowTitle, obs.MemoryUpdate),
			Text: obs.MemoryUpdate,
			At:   now,
		})
	}
	text := obs.Reply
	if text == "" {
		text = obs.Summary
	}
	if text != "" {
		e.appendDialogLocked(dialogEntry{Role: "assistant", Text: text, At: now})
	}

	suppress, reason := e.suppressLocked(obs, diff, forced, now)
	if !suppress && obs.ShouldNotify {
		e.lastNotifyKey = observe.DedupeKey(obs.DedupeKey, obs)
		e.lastNotifyAt = now
		e.lastSummaryKey = observe.SummaryKey(obs)
		e.lastSummaryAt = now
		e.lastNotifiedText = text
		if obs.Question != "" {
			e.lastQuestion = observe.NormalizeQuestion(obs.Question)
			e.lastQuestionAt = now
		}
	}
	e.mu.Unlock()

	if suppress || !obs.ShouldNotify {
		e.emit(status.PhaseIdle, map[string]interface{}{"reason": reason})
		return
	}

	if e.Notify != nil {
		e.Notify.Notify(text, obs.Severity)
	}
	e.emit(status.PhaseNotified, map[string]interface{}{
		"severity": string(obs.Severity), "summary": obs.Summary,
	})
	log.Infow("notification raised", "severity", string(obs.Severity), "text", text)
}

// suppressLocked implements the notification suppression and question
// dedupe rules. A fresh user message bypasses suppression entirely.
func (e *Engine) suppressLocked(obs observe.Observation, diff capture.Diff, forced bool, now time.Time) (bool, string) {
	if !obs.ShouldNotify {
		return true, "model declined"
	}
	if forced || (!e.lastUserAt.IsZero() && e.lastUserAt.After(e.lastNotifyAt)) {
		// New user input always reaches the user, except a repeated
		// question they already answered.
		if e.repeatedAnsweredQuestionLocked(obs) {
			return true, "repeated question answered"
		}
		return false, ""
	}
	key := observe.DedupeKey(obs.DedupeKey, obs)
	if key == e.lastNotifyKey && now.Sub(e.lastNotifyAt) < e.cfg.NotifyCooldown {
		return true, "dedupe key repeat inside cooldown"
	}
	if observe.SummaryKey(obs) == e.lastSummaryKey &&
		now.Sub(e.lastSummaryAt) < 2*e.cfg.NotifyCooldown &&
		diff.Distance < e.cfg.SmallDiffDistance {
		return true, "same conclusion on static screen"
	}
	if e.repeatedAnsweredQuestionLocked(obs) {
		return true, "repeated question answered"
	}
	return false, ""
}

// repeatedAnsweredQuestionLocked reports whether the observation repeats
// the previous question after the user already replied to it.
func (e *Engine) repeatedAnsweredQuestionLocked(obs observe.Observation) bool {
	if obs.Question == "" || e.lastQuestion == "" {
		return false
	}
	return observe.NormalizeQuestion(obs.Question) == e.lastQuestion &&
		e.lastUserAt.After(e.lastQuestionAt)
}

// pickBatchFramesLocked selects the frames to attach to a vision call:
// drop consecutive duplicates by content hash, then evenly sample down to
// the budget, always keeping the most recent frame.
func (e *Engine) pickBatchFramesLocked(cfg config.LiveWatchConfig) []frameRecord {
	if len(e.frames) == 0 {
		return nil
	}

	deduped := make([]frameRecord, 0, len(e.frames))
	for i, f := range e.frames {
		if i > 0 && f.Hash != "" && f.Hash == e.frames[i-1].Hash {
			continue
		}
		deduped = append(deduped, f)
	}
	// The newest frame always survives dedupe: if it was dropped as a
	// duplicate its content equals the kept predecessor, so replace the
	// tail with it to carry the freshest timestamp.
	deduped[len(deduped)-1] = e.frames[len(e.frames)-1]

	budget := cfg.SummaryEveryFrames
	if cfg.MaxImagesPerAnalysis < budget {
		budget = cfg.MaxImagesPerAnalysis
	}
	if budget < 1 {
		budget = 1
	}
	if len(deduped) <= budget {
		return deduped
	}

	// Even sampling across the window, pinned to the newest frame.
	span := len(deduped) - 1
	if budget == 1 {
		return []frameRecord{deduped[span]}
	}
	out := make([]frameRecord, 0, budget)
	for i := 0; i < budget; i++ {
		out = append(out, deduped[i*span/(budget-1)])
	}
	out[len(out)-1] = deduped[span]
	return out
}

func (e *Engine) bufferedFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

// buildPromptLocked assembles the mode-specific analysis prompt.
func (e *Engine) buildPromptLocked(cfg config.LiveWatchConfig, c *capture.Capture,
	diff capture.Diff, forced, vision bool, frames []frameRecord) string {

	var sb strings.Builder
	sb.WriteString("You are quietly watching the user's screen to help when something noteworthy happens.\n\n")
	fmt.Fprintf(&sb, "Front app: %s\nWindow: %s\n", c.AppName, c.WindowTitle)
	fmt.Fprintf(&sb, "Screen change since last look: distance=%.3f changed_ratio=%.2f\n", diff.Distance, diff.ChangedRatio)
	if e.focusHint != "" {
		fmt.Fprintf(&sb, "The user asked you to focus on: %s\n", e.focusHint)
	}
	if e.lastUserText != "" {
		fmt.Fprintf(&sb, "Latest user message (%s ago): %s\n",
			time.Since(e.lastUserAt).Round(time.Second), e.lastUserText)
	}
	if forced {
		sb.WriteString("This analysis was requested by the user just now; answer them directly.\n")
	}

	if len(e.dialog) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, d := range e.dialog {
			fmt.Fprintf(&sb, "- [%s] %s\n", d.Role, d.Text)
		}
	}
	if len(e.memory) > 0 {
		sb.WriteString("\nWhat you have seen so far:\n")
		for _, m := range e.memory {
			fmt.Fprintf(&sb, "- %s: %s\n", m.At.Format("15:04:05"), m.Text)
		}
	}
	if e.lastNotifiedText != "" {
		fmt.Fprintf(&sb, "\nYour previous notification: %s\n", e.lastNotifiedText)
	}

	if vision {
		fmt.Fprintf(&sb, "\nAttached are %d screenshots sampled over the recent window:\n", len(frames))
		for i, f := range frames {
			fmt.Fprintf(&sb, "%d. %s — %s / %s\n", i+1, f.At.Format("15:04:05"), f.App, f.Window)
		}
	} else {
		sb.WriteString("\nNo screenshots are attached this round. Reason only from the context above; do not invent visual details you have not seen.\n")
	}

	sb.WriteString("\nReply with exactly one JSON object:\n")
	sb.WriteString(`{"should_notify": bool, "severity": "info"|"warn", "summary": "...", "reply": "...", "memory_update": "...", "question": "...", "confidence": 0.0-1.0}`)
	sb.WriteString("\nOnly set should_notify when the user genuinely benefits from an interruption.")
	return sb.String()
}
