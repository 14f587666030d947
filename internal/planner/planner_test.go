package planner

import (
	"context"
	"testing"

	"deskpilot/internal/action"
	"deskpilot/internal/backend"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBackend struct {
	vision   bool
	response string
	err      error
	lastReq  backend.ConverseRequest
}

func (s *scriptedBackend) Name() string         { return "scripted" }
func (s *scriptedBackend) SupportsVision() bool { return s.vision }
func (s *scriptedBackend) Converse(ctx context.Context, req backend.ConverseRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

func testCapture() *capture.Capture {
	return &capture.Capture{
		Data:        []byte{1, 2, 3},
		MIME:        "image/png",
		Scope:       capture.ScopeWindow,
		AppName:     "WeChat",
		WindowTitle: "Chats",
		PixelWidth:  800,
		PixelHeight: 600,
	}
}

func TestPlanParsesFencedJSON(t *testing.T) {
	b := &scriptedBackend{vision: true, response: "Sure, here's the plan:\n```json\n" +
		`{"analysis":"badge visible","actions":[{"action":"click","x":120,"y":340},{"action":"wait","ms":500}]}` +
		"\n```"}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	plan, err := p.Plan(context.Background(), "check unread messages", nil, testCapture())
	require.NoError(t, err)
	assert.Equal(t, "badge visible", plan.Analysis)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, action.TypeClick, plan.Actions[0].Type)
	assert.Equal(t, 120.0, plan.Actions[0].X)
	// Vision backend gets the capture attached.
	require.Len(t, b.lastReq.Images, 1)
}

func TestPlanParsesBareJSONInProse(t *testing.T) {
	b := &scriptedBackend{response: `I think {"actions":[{"action":"done","reason":"Found 3 unread messages"}]} covers it.`}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	plan, err := p.Plan(context.Background(), "check messages", nil, nil)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, action.TypeDone, plan.Actions[0].Type)
	assert.Equal(t, "Found 3 unread messages", plan.Actions[0].Reason)
	assert.Empty(t, b.lastReq.Images)
}

func TestPlanDropsUnknownActions(t *testing.T) {
	b := &scriptedBackend{response: `{"actions":[{"action":"levitate"},{"action":"click","x":1,"y":2}]}`}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	plan, err := p.Plan(context.Background(), "goal", nil, nil)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, action.TypeClick, plan.Actions[0].Type)
}

func TestPlanSingleActionObject(t *testing.T) {
	b := &scriptedBackend{response: `{"action":"open_app","app":"WeChat"}`}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	plan, err := p.Plan(context.Background(), "goal", nil, nil)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, action.TypeOpenApp, plan.Actions[0].Type)
}

func TestPlanNoActionsIsDistinctError(t *testing.T) {
	b := &scriptedBackend{response: "I am not sure what to do here."}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	_, err := p.Plan(context.Background(), "goal", nil, nil)
	assert.ErrorIs(t, err, ErrNoActions)
}

func TestPromptEmbedsContextAndHistory(t *testing.T) {
	b := &scriptedBackend{vision: true, response: `{"actions":[{"action":"done","reason":"x"}]}`}
	p := &Planner{Backend: b, Cfg: config.DefaultAutomationConfig()}

	history := []HistoryEntry{
		{Index: 1, Action: "open_app(WeChat)", OK: true, Detail: "opened WeChat"},
		{Index: 2, Action: "click(10,20)", OK: false, Detail: "click failed: no response"},
	}
	_, err := p.Plan(context.Background(), "查看企业微信有没有未读消息", history, testCapture())
	require.NoError(t, err)

	prompt := b.lastReq.Prompt
	assert.Contains(t, prompt, "查看企业微信有没有未读消息")
	assert.Contains(t, prompt, "Front app: WeChat")
	assert.Contains(t, prompt, "open_app(WeChat)")
	assert.Contains(t, prompt, "[failed]")
	// Unread goals get the badge hint.
	assert.Contains(t, prompt, "red unread badge")
	// Batch bound appears in the rules.
	assert.Contains(t, prompt, "at most 3 actions")
}

func TestPromptClampsHistoryWindow(t *testing.T) {
	b := &scriptedBackend{response: `{"actions":[{"action":"done","reason":"x"}]}`}
	cfg := config.DefaultAutomationConfig()
	cfg.HistoryWindow = 8
	p := &Planner{Backend: b, Cfg: cfg}

	var history []HistoryEntry
	for i := 1; i <= 30; i++ {
		history = append(history, HistoryEntry{Index: i, Action: "wait(100ms)", OK: true})
	}
	_, err := p.Plan(context.Background(), "goal", history, nil)
	require.NoError(t, err)

	assert.NotContains(t, b.lastReq.Prompt, "22. wait")
	assert.Contains(t, b.lastReq.Prompt, "23. wait")
	assert.Contains(t, b.lastReq.Prompt, "30. wait")
}
