package automation

import (
	"context"
	"fmt"
	"strings"

	"deskpilot/internal/backend"
	"deskpilot/internal/badge"
	"deskpilot/internal/callslot"
	"deskpilot/internal/extract"
	"deskpilot/internal/logging"
	"deskpilot/internal/status"
)

// delegateReport is the completion contract the delegated agent must
// satisfy before its result is trusted over the step loop.
type delegateReport struct {
	Completed   bool    `json:"completed"`
	Confidence  float64 `json:"confidence"`
	OperatedApp string  `json:"operated_app"`
	Summary     string  `json:"summary"`
}

// runDelegate hands the whole goal to the backend as a single delegated
// task and validates the completion report. Returns ok=false when the
// result cannot be trusted, in which case the caller falls back to the
// step loop.
func (r *Runner) runDelegate(ctx context.Context, runID, goal string) (Result, bool) {
	r.emit(status.PhasePlanningTarget, map[string]interface{}{"run_id": runID})
	log := logging.Get(logging.CategoryAutomation)

	hint := badge.TargetAppHint(goal)
	req := backend.ConverseRequest{
		Prompt:   r.delegatePrompt(goal, hint),
		Timeout:  r.Cfg.PlanTimeout,
		Priority: callslot.PriorityInteractive,
	}
	if c, err := r.Grabber.Capture(ctx); err == nil && r.Backend.SupportsVision() {
		req.Images = []backend.Attachment{{Data: c.Data, MIME: c.MIME}}
	}

	out, err := r.Backend.Converse(ctx, req)
	if err != nil {
		log.Warnw("delegate call failed", "run_id", runID, "error", err)
		return Result{}, false
	}

	var rep delegateReport
	if !extract.FirstObject(out, &rep) {
		log.Warnw("delegate report unparseable", "run_id", runID)
		return Result{}, false
	}
	if !rep.Completed || rep.Confidence < r.Cfg.DelegateConfidence {
		log.Infow("delegate report rejected", "run_id", runID,
			"completed", rep.Completed, "confidence", rep.Confidence)
		return Result{}, false
	}
	if hint != "" && !appMatches(rep.OperatedApp, hint) {
		log.Infow("delegate operated wrong app", "run_id", runID,
			"want", hint, "got", rep.OperatedApp)
		return Result{}, false
	}

	answer := strings.TrimSpace(rep.Summary)
	if answer == "" {
		answer = fmt.Sprintf("delegated task completed for goal: %s", goal)
	}
	r.emit(status.PhaseDone, map[string]interface{}{"run_id": runID})
	r.emit(status.PhaseResult, map[string]interface{}{"run_id": runID, "answer": answer})
	return Result{RunID: runID, Goal: goal, Completed: true, Answer: answer}, true
}

func (r *Runner) delegatePrompt(goal, hint string) string {
	var sb strings.Builder
	sb.WriteString("You control this macOS desktop through your own tools. Complete the task end to end, then report.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", goal)
	if hint != "" {
		fmt.Fprintf(&sb, "The task targets the app %q. Operate that app, not another.\n", hint)
	}
	sb.WriteString("\nWhen finished, reply with exactly one JSON object:\n")
	sb.WriteString(`{"completed": true, "confidence": 0.0-1.0, "operated_app": "app you operated", "summary": "what you did and the outcome"}`)
	sb.WriteString("\nSet completed=false if you could not finish.")
	return sb.String()
}

// appMatches compares an operated-app report against the expected app,
// tolerating case and substring variation (e.g. "WeCom" vs
// "企业微信 WeCom").
func appMatches(got, want string) bool {
	g := strings.ToLower(strings.TrimSpace(got))
	w := strings.ToLower(strings.TrimSpace(want))
	if g == "" || w == "" {
		return false
	}
	return g == w || strings.Contains(g, w) || strings.Contains(w, g)
}
