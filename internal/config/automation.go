package config

import "time"

// AutomationConfig tunes the automation control loop.
type AutomationConfig struct {
	// Mode selects the execution path: "steps" runs the local
	// capture/plan/execute loop; "delegate" hands the whole goal to a
	// backend that performs its own OS operations. Unread-message goals
	// always use the steps path regardless of mode.
	Mode string `yaml:"mode"`

	// BatchSize is how many planned actions execute before re-capturing.
	// Clamped to [1,5]. Small batches bound coordinate staleness against
	// a changing screen.
	BatchSize int `yaml:"batch_size"`

	// MaxBadgeClicks bounds the unread-badge shortcut before falling
	// back to the general planner.
	MaxBadgeClicks int `yaml:"max_badge_clicks"`

	// BadgeSettle is how long to wait after a badge click before
	// re-detecting to decide whether the click landed.
	BadgeSettle time.Duration `yaml:"badge_settle"`

	// HistoryWindow is how many recent step-log entries feed the planner
	// prompt.
	HistoryWindow int `yaml:"history_window"`

	// PlanTimeout bounds one planning model call.
	PlanTimeout time.Duration `yaml:"plan_timeout"`

	// DelegateConfidence is the minimum confidence a delegated backend
	// must report for its completion to be accepted.
	DelegateConfidence float64 `yaml:"delegate_confidence"`
}

// DefaultAutomationConfig returns loop defaults.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		Mode:               "steps",
		BatchSize:          3,
		MaxBadgeClicks:     3,
		BadgeSettle:        450 * time.Millisecond,
		HistoryWindow:      12,
		PlanTimeout:        180 * time.Second,
		DelegateConfidence: 0.7,
	}
}

func (c *AutomationConfig) clamp() {
	if c.Mode != "delegate" {
		c.Mode = "steps"
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.BatchSize > 5 {
		c.BatchSize = 5
	}
	if c.MaxBadgeClicks < 1 {
		c.MaxBadgeClicks = 1
	}
	if c.BadgeSettle <= 0 {
		c.BadgeSettle = 450 * time.Millisecond
	}
	if c.HistoryWindow < 8 {
		c.HistoryWindow = 8
	}
	if c.HistoryWindow > 20 {
		c.HistoryWindow = 20
	}
	if c.PlanTimeout <= 0 {
		c.PlanTimeout = 180 * time.Second
	}
	if c.DelegateConfidence <= 0 || c.DelegateConfidence > 1 {
		c.DelegateConfidence = 0.7
	}
}
