// Package planner turns a goal plus execution history plus the current
// capture into a bounded batch of next actions, by prompting the model and
// parsing its output permissively.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deskpilot/internal/action"
	"deskpilot/internal/backend"
	"deskpilot/internal/badge"
	"deskpilot/internal/callslot"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"
	"deskpilot/internal/extract"
	"deskpilot/internal/logging"
)

// ErrNoActions reports that the model produced no usable actions. The
// control loop treats it as planner exhaustion, distinct from transport
// failure.
var ErrNoActions = errors.New("planner returned no actions")

// Plan is one round's output.
type Plan struct {
	Goal     string
	Analysis string
	Actions  []action.Action
}

// HistoryEntry is the planner's view of one executed step.
type HistoryEntry struct {
	Index  int
	Action string
	Reason string
	OK     bool
	Detail string
}

// Planner builds prompts and parses plans.
type Planner struct {
	Backend backend.Backend
	Cfg     config.AutomationConfig
}

// Plan runs one planning round. The capture is attached as an image when
// the backend supports vision.
func (p *Planner) Plan(ctx context.Context, goal string, history []HistoryEntry, c *capture.Capture) (*Plan, error) {
	hasImage := p.Backend.SupportsVision() && c != nil && len(c.Data) > 0
	prompt := p.buildPrompt(goal, history, c, hasImage)

	req := backend.ConverseRequest{
		Prompt:   prompt,
		Timeout:  p.Cfg.PlanTimeout,
		Priority: callslot.PriorityInteractive,
	}
	if hasImage {
		req.Images = []backend.Attachment{{Data: c.Data, MIME: c.MIME}}
	}

	raw, err := p.Backend.Converse(ctx, req)
	if err != nil {
		return nil, err
	}

	plan := p.parse(goal, raw)
	if len(plan.Actions) == 0 {
		return nil, ErrNoActions
	}
	logging.Get(logging.CategoryPlanner).Debugw("plan parsed",
		"actions", len(plan.Actions), "analysis_bytes", len(plan.Analysis))
	return plan, nil
}

func (p *Planner) buildPrompt(goal string, history []HistoryEntry, c *capture.Capture, hasImage bool) string {
	var sb strings.Builder
	sb.WriteString("You control a macOS desktop to accomplish a goal.\n\n")
	fmt.Fprintf(&sb, "GOAL: %s\n\n", goal)

	sb.WriteString("Respond with exactly one JSON object:\n")
	sb.WriteString(`{"analysis": "what you see and what to do next", "actions": [`)
	sb.WriteString("\n")
	sb.WriteString(`  {"action": "open_app", "app": "..."} | {"action": "activate_app", "app": "..."} |` + "\n")
	sb.WriteString(`  {"action": "click", "x": 0, "y": 0} | {"action": "double_click", "x": 0, "y": 0} |` + "\n")
	sb.WriteString(`  {"action": "type_text", "text": "..."} | {"action": "shortcut", "keys": "cmd+shift+p"} |` + "\n")
	sb.WriteString(`  {"action": "wait", "ms": 500} | {"action": "done", "reason": "..."}` + "\n")
	sb.WriteString("]}\n\n")

	sb.WriteString("Rules:\n")
	fmt.Fprintf(&sb, "- Emit at most %d actions; only the first few run before the screen is re-captured.\n", p.Cfg.BatchSize)
	sb.WriteString("- Prefer deterministic, safe actions; never guess coordinates you cannot see.\n")
	sb.WriteString("- Click coordinates are in the screenshot's pixel space, not screen points.\n")
	sb.WriteString("- Emit done with a concise reason as soon as the goal is satisfied.\n")
	if badge.MatchesUnreadGoal(goal) {
		sb.WriteString("- Look for a red unread badge in the conversation list before declaring done.\n")
	}
	sb.WriteString("\n")

	if c != nil {
		fmt.Fprintf(&sb, "Front app: %s\nWindow: %s\nCapture scope: %s (%dx%d px)\n",
			orUnknown(c.AppName), orUnknown(c.WindowTitle), c.Scope, c.PixelWidth, c.PixelHeight)
	}
	if hasImage {
		sb.WriteString("The current screenshot is attached.\n")
	} else {
		sb.WriteString("No screenshot is attached; plan from the history below.\n")
	}

	if len(history) > 0 {
		window := p.Cfg.HistoryWindow
		if len(history) > window {
			history = history[len(history)-window:]
		}
		sb.WriteString("\nSteps so far (oldest first):\n")
		for _, h := range history {
			status := "ok"
			if !h.OK {
				status = "failed"
			}
			fmt.Fprintf(&sb, "%d. %s [%s] %s %s\n", h.Index, h.Action, status, h.Reason, h.Detail)
		}
	}
	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}

// parse tolerantly extracts a plan: fenced JSON first, then any bare
// object in the text. Actions without a recognized type are dropped; a
// parse failure never aborts the round by itself.
func (p *Planner) parse(goal, raw string) *Plan {
	plan := &Plan{Goal: goal}

	var obj map[string]interface{}
	if !extract.FirstObject(raw, &obj) {
		return plan
	}
	if s, ok := extract.String(obj, "analysis", "thought", "reasoning"); ok {
		plan.Analysis = s
	}

	rawActions, _ := obj["actions"].([]interface{})
	for _, ra := range rawActions {
		m, ok := ra.(map[string]interface{})
		if !ok {
			continue
		}
		if a, ok := action.FromRaw(m); ok {
			plan.Actions = append(plan.Actions, a)
		}
	}

	// Some models answer with a single action object instead of a list.
	if len(plan.Actions) == 0 {
		if a, ok := action.FromRaw(obj); ok {
			plan.Actions = append(plan.Actions, a)
		}
	}
	return plan
}
