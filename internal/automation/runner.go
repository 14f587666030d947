// Package automation runs the perception-plan-act control loop: capture
// the screen, shortcut through the unread-badge detector when it applies,
// otherwise ask the planner for a bounded batch of actions, execute them,
// and repeat until done, failure, or cancellation.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskpilot/internal/action"
	"deskpilot/internal/backend"
	"deskpilot/internal/badge"
	"deskpilot/internal/callslot"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"
	"deskpilot/internal/logging"
	"deskpilot/internal/planner"
	"deskpilot/internal/status"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when a second automation run is requested
// while one is active. The active run is unaffected.
var ErrAlreadyRunning = errors.New("automation run already active")

// ErrPaused is the cancel cause for user-initiated pause. Loops unwind on
// it without treating it as a hard failure.
var ErrPaused = errors.New("paused by user")

// Step is one entry of the append-only step log.
type Step struct {
	Index  int
	Action action.Action
	Reason string
	OK     bool
	Detail string
}

// Result is the outcome of one automation run.
type Result struct {
	RunID     string
	Goal      string
	Completed bool
	Paused    bool
	Answer    string
	Steps     []Step
}

// Runner orchestrates automation runs. One Runner allows one active run
// at a time.
type Runner struct {
	Grabber  *capture.Grabber
	Planner  *planner.Planner
	Executor *action.Executor
	Detector *badge.Detector
	Backend  backend.Backend
	Cfg      config.AutomationConfig
	Status   status.StatusSink

	mu     sync.Mutex
	active bool
}

// Run executes the goal to completion. A concurrent call while a run is
// active returns ErrAlreadyRunning with no side effects on the first run.
func (r *Runner) Run(ctx context.Context, goal string) (Result, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	r.active = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	runID := uuid.NewString()[:8]
	r.emit(status.PhaseStart, map[string]interface{}{"run_id": runID, "goal": goal})
	logging.Get(logging.CategoryAutomation).Infow("automation start", "run_id", runID, "goal", goal)

	if r.Cfg.Mode == "delegate" && !badge.MatchesUnreadGoal(goal) {
		if res, ok := r.runDelegate(ctx, runID, goal); ok {
			return res, nil
		}
		r.emit(status.PhaseMCPFallback, map[string]interface{}{"run_id": runID})
	}

	return r.runSteps(ctx, runID, goal)
}

// run state for one step-loop execution.
type runState struct {
	runID       string
	goal        string
	steps       []Step
	lastCapture *capture.Capture
	lastPlan    *planner.Plan
	doneReason  string
	completed   bool
	failed      bool
	paused      bool

	badgeClicks   int
	prevCandidate *badge.Candidate
}

func (r *Runner) runSteps(ctx context.Context, runID, goal string) (Result, error) {
	st := &runState{runID: runID, goal: goal}
	unreadGoal := badge.MatchesUnreadGoal(goal)

	// No hard round ceiling: the loop runs until done, failure, or
	// cancellation. Cancellation is the safety valve.
	for !st.completed && !st.failed && !st.paused {
		if r.checkPaused(ctx, st) {
			break
		}

		r.emit(status.PhaseCapturing, map[string]interface{}{"run_id": runID})
		c, err := r.Grabber.Capture(ctx)
		if err != nil {
			if r.classifyErr(ctx, st, err, "capture") {
				break
			}
			continue
		}
		st.lastCapture = c
		r.emit(status.PhaseCaptured, map[string]interface{}{
			"run_id": runID, "app": c.AppName, "window": c.WindowTitle, "scope": string(c.Scope),
		})

		if unreadGoal && badge.LooksLikeChatApp(c.AppName) && st.badgeClicks < r.Cfg.MaxBadgeClicks {
			handled, stop := r.tryBadgeShortcut(ctx, st, c)
			if stop {
				break
			}
			if handled {
				continue
			}
		}

		if stop := r.planAndExecute(ctx, st, c); stop {
			break
		}
	}

	r.emit(status.PhaseFinalizing, map[string]interface{}{"run_id": runID})
	answer := r.finalAnswer(ctx, st)

	res := Result{
		RunID:     runID,
		Goal:      goal,
		Completed: st.completed,
		Paused:    st.paused,
		Answer:    answer,
		Steps:     st.steps,
	}
	phase := status.PhaseDone
	if st.paused {
		phase = status.PhasePaused
	} else if st.failed {
		phase = status.PhaseError
	}
	r.emit(phase, map[string]interface{}{"run_id": runID})
	r.emit(status.PhaseResult, map[string]interface{}{"run_id": runID, "answer": answer})
	return res, nil
}

// tryBadgeShortcut runs the local badge heuristic for one round. handled
// means the round is complete (re-loop); stop means the run must end.
func (r *Runner) tryBadgeShortcut(ctx context.Context, st *runState, c *capture.Capture) (handled, stop bool) {
	r.emit(status.PhaseUnreadScan, map[string]interface{}{"run_id": st.runID})
	cand := r.Detector.Detect(c)
	if cand == nil {
		return false, false
	}

	// A candidate at the same position after the previous click means the
	// click missed the row; escalate to a double-click at a larger offset.
	escalate := cand.SameAs(st.prevCandidate, r.Detector.Config())
	x, y := r.Detector.RowClickPoint(cand, c.PixelWidth)
	act := action.Action{Type: action.TypeClick, X: float64(x), Y: float64(y)}
	reason := "unread badge shortcut"
	if escalate {
		x += c.PixelWidth / 25
		act = action.Action{Type: action.TypeDoubleClick, X: float64(x), Y: float64(y)}
		reason = "unread badge retry (candidate persisted)"
	}

	res, err := r.Executor.Execute(ctx, act, c)
	if err != nil {
		return false, r.classifyErr(ctx, st, err, "badge click")
	}
	r.appendStep(st, act, reason, res)
	if !res.OK {
		st.failed = true
		return false, true
	}

	st.prevCandidate = cand
	st.badgeClicks++

	// Let the UI settle before the next capture decides whether the
	// click landed.
	select {
	case <-time.After(r.Cfg.BadgeSettle):
	case <-ctx.Done():
		return false, r.classifyErr(ctx, st, ctx.Err(), "badge settle")
	}
	return true, false
}

// planAndExecute runs one general planning round and up to BatchSize of
// its actions. Returns true when the run must stop.
func (r *Runner) planAndExecute(ctx context.Context, st *runState, c *capture.Capture) (stop bool) {
	r.emit(status.PhasePlanning, map[string]interface{}{"run_id": st.runID})

	plan, err := r.Planner.Plan(ctx, st.goal, r.history(st), c)
	if err != nil {
		if errors.Is(err, planner.ErrNoActions) {
			r.appendStep(st, action.Action{Type: action.TypeWait}, "planning",
				action.Result{OK: false, Detail: "planner returned no actions"})
			st.failed = true
			return true
		}
		return r.classifyErr(ctx, st, err, "planning")
	}
	st.lastPlan = plan
	r.emit(status.PhasePlanReady, map[string]interface{}{
		"run_id": st.runID, "actions": len(plan.Actions),
	})

	batch := plan.Actions
	if len(batch) > r.Cfg.BatchSize {
		batch = batch[:r.Cfg.BatchSize]
	}
	for _, act := range batch {
		r.emit(status.PhaseStepStart, map[string]interface{}{
			"run_id": st.runID, "action": act.String(),
		})
		res, err := r.Executor.Execute(ctx, act, c)
		if err != nil {
			return r.classifyErr(ctx, st, err, "execute")
		}
		r.appendStep(st, act, plan.Analysis, res)
		r.emit(status.PhaseStepDone, map[string]interface{}{
			"run_id": st.runID, "action": act.String(), "ok": res.OK,
		})

		if act.Type == action.TypeDone {
			st.completed = true
			st.doneReason = act.Reason
			return true
		}
		// Fail fast: the screen state after a failed action is unknown,
		// so the rest of the batch would act on stale assumptions.
		if !res.OK {
			st.failed = true
			return true
		}
	}
	return false
}

func (r *Runner) appendStep(st *runState, act action.Action, reason string, res action.Result) {
	st.steps = append(st.steps, Step{
		Index:  len(st.steps) + 1,
		Action: act,
		Reason: reason,
		OK:     res.OK,
		Detail: res.Detail,
	})
}

func (r *Runner) history(st *runState) []planner.HistoryEntry {
	entries := make([]planner.HistoryEntry, 0, len(st.steps))
	for _, s := range st.steps {
		entries = append(entries, planner.HistoryEntry{
			Index:  s.Index,
			Action: s.Action.String(),
			Reason: s.Reason,
			OK:     s.OK,
			Detail: s.Detail,
		})
	}
	return entries
}

func (r *Runner) checkPaused(ctx context.Context, st *runState) bool {
	if ctx.Err() != nil {
		st.paused = true
		return true
	}
	return false
}

// classifyErr sorts a round error into paused vs failed, records it, and
// reports whether the loop must stop (always true for real failures).
func (r *Runner) classifyErr(ctx context.Context, st *runState, err error, during string) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrPaused) ||
		errors.Is(err, callslot.ErrPreempted) || errors.Is(context.Cause(ctx), ErrPaused) {
		st.paused = true
		logging.Get(logging.CategoryAutomation).Infow("run paused", "run_id", st.runID, "during", during)
		return true
	}
	st.failed = true
	r.appendStep(st, action.Action{Type: action.TypeWait}, during,
		action.Result{OK: false, Detail: err.Error()})
	r.emit(status.PhaseError, map[string]interface{}{
		"run_id": st.runID, "during": during, "error": err.Error(),
	})
	return true
}

// finalAnswer synthesizes the user-facing answer: ask the model to
// summarize the step log against the final frame, falling back to a
// locally derived answer when that call cannot run or fails.
func (r *Runner) finalAnswer(ctx context.Context, st *runState) string {
	if !st.paused && ctx.Err() == nil && r.Backend != nil && len(st.steps) > 0 {
		if answer := r.summarizeRun(ctx, st); answer != "" {
			return answer
		}
	}
	return r.localAnswer(st)
}

func (r *Runner) summarizeRun(ctx context.Context, st *runState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\nExecuted steps:\n", st.goal)
	for _, s := range st.steps {
		ok := "ok"
		if !s.OK {
			ok = "failed"
		}
		fmt.Fprintf(&sb, "%d. %s [%s] %s\n", s.Index, s.Action.String(), ok, s.Detail)
	}
	outcome := "the run did not complete"
	if st.completed {
		outcome = "the goal was reported done"
	}
	fmt.Fprintf(&sb, "\nOutcome: %s. In one or two sentences, tell the user what happened and what they should know.", outcome)

	req := backend.ConverseRequest{
		Prompt:   sb.String(),
		Timeout:  r.Cfg.PlanTimeout,
		Priority: callslot.PriorityInteractive,
	}
	if r.Backend.SupportsVision() && st.lastCapture != nil && len(st.lastCapture.Data) > 0 {
		req.Images = []backend.Attachment{{Data: st.lastCapture.Data, MIME: st.lastCapture.MIME}}
	}
	answer, err := r.Backend.Converse(ctx, req)
	if err != nil {
		logging.Get(logging.CategoryAutomation).Debugw("final answer call failed",
			"run_id", st.runID, "error", err)
		return ""
	}
	return strings.TrimSpace(answer)
}

// localAnswer derives an answer without a model call: the done reason,
// else the first failure's detail, else the last analysis, else generic.
func (r *Runner) localAnswer(st *runState) string {
	if st.doneReason != "" {
		return st.doneReason
	}
	for _, s := range st.steps {
		if !s.OK {
			return s.Detail
		}
	}
	if st.lastPlan != nil && st.lastPlan.Analysis != "" {
		return st.lastPlan.Analysis
	}
	if st.paused {
		return fmt.Sprintf("automation paused for goal: %s", st.goal)
	}
	return fmt.Sprintf("automation finished for goal: %s", st.goal)
}

func (r *Runner) emit(phase status.Phase, fields map[string]interface{}) {
	if r.Status == nil {
		return
	}
	r.Status.Emit(status.Event{Phase: phase, Fields: fields})
}
