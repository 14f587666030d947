package config

import "time"

// LiveWatchConfig tunes the live-watch engine. Every update passes through
// clamp, which also enforces MaxImagesPerAnalysis <= MaxImageFrames.
type LiveWatchConfig struct {
	// Interval between sampling rounds. Clamped to [2s,30s].
	Interval time.Duration `yaml:"interval"`

	// UserMessageDelay is the near-immediate reschedule after a user
	// message arrives mid-round.
	UserMessageDelay time.Duration `yaml:"user_message_delay"`

	// DialogCap bounds the rolling dialog transcript.
	DialogCap int `yaml:"dialog_cap"`

	// MemoryCap bounds the rolling visual-memory timeline.
	MemoryCap int `yaml:"memory_cap"`

	// MaxImageFrames bounds the rolling frame buffer.
	MaxImageFrames int `yaml:"max_image_frames"`

	// MaxImagesPerAnalysis bounds frames attached to one vision call.
	// Never exceeds MaxImageFrames.
	MaxImagesPerAnalysis int `yaml:"max_images_per_analysis"`

	// SummaryEveryFrames is how many buffered frames accumulate before an
	// unchanged screen still gets analyzed.
	SummaryEveryFrames int `yaml:"summary_every_frames"`

	// TextRoundCap is how many consecutive incremental (text-only) rounds
	// may run before the next round is forced to vision. Clamped [1,10].
	TextRoundCap int `yaml:"text_round_cap"`

	// NotifyCooldown suppresses repeat notifications with the same dedupe
	// key inside this window.
	NotifyCooldown time.Duration `yaml:"notify_cooldown"`

	// MinDiffDistance and MinDiffRatio classify a frame as "changed".
	MinDiffDistance float64 `yaml:"min_diff_distance"`
	MinDiffRatio    float64 `yaml:"min_diff_ratio"`

	// SmallDiffDistance marks an essentially static screen for the
	// repeated-summary suppression rule.
	SmallDiffDistance float64 `yaml:"small_diff_distance"`

	// VisionTimeout bounds one vision analysis model call.
	VisionTimeout time.Duration `yaml:"vision_timeout"`

	// OwnAppName is the assistant's own UI app name; frames of it are
	// skipped unless a user message forces analysis.
	OwnAppName string `yaml:"own_app_name"`
}

// DefaultLiveWatchConfig returns engine defaults.
func DefaultLiveWatchConfig() LiveWatchConfig {
	return LiveWatchConfig{
		Interval:             2500 * time.Millisecond,
		UserMessageDelay:     300 * time.Millisecond,
		DialogCap:            10,
		MemoryCap:            16,
		MaxImageFrames:       30,
		MaxImagesPerAnalysis: 4,
		SummaryEveryFrames:   6,
		TextRoundCap:         4,
		NotifyCooldown:       8 * time.Second,
		MinDiffDistance:      0.015,
		MinDiffRatio:         0.06,
		SmallDiffDistance:    0.12,
		VisionTimeout:        90 * time.Second,
		OwnAppName:           "Deskpilot",
	}
}

func (c *LiveWatchConfig) clamp() {
	if c.Interval < 2*time.Second {
		c.Interval = 2 * time.Second
	}
	if c.Interval > 30*time.Second {
		c.Interval = 30 * time.Second
	}
	if c.UserMessageDelay <= 0 {
		c.UserMessageDelay = 300 * time.Millisecond
	}
	if c.DialogCap < 1 {
		c.DialogCap = 10
	}
	if c.MemoryCap < 1 {
		c.MemoryCap = 16
	}
	if c.MaxImageFrames < 1 {
		c.MaxImageFrames = 30
	}
	if c.MaxImagesPerAnalysis < 1 {
		c.MaxImagesPerAnalysis = 1
	}
	if c.MaxImagesPerAnalysis > c.MaxImageFrames {
		c.MaxImagesPerAnalysis = c.MaxImageFrames
	}
	if c.SummaryEveryFrames < 1 {
		c.SummaryEveryFrames = 6
	}
	if c.TextRoundCap < 1 {
		c.TextRoundCap = 1
	}
	if c.TextRoundCap > 10 {
		c.TextRoundCap = 10
	}
	if c.NotifyCooldown <= 0 {
		c.NotifyCooldown = 8 * time.Second
	}
	if c.MinDiffDistance <= 0 {
		c.MinDiffDistance = 0.015
	}
	if c.MinDiffRatio <= 0 {
		c.MinDiffRatio = 0.06
	}
	if c.SmallDiffDistance <= 0 {
		c.SmallDiffDistance = 0.12
	}
	if c.VisionTimeout <= 0 {
		c.VisionTimeout = 90 * time.Second
	}
}

// Clamp exposes range enforcement for live config updates pushed into a
// running engine.
func (c *LiveWatchConfig) Clamp() { c.clamp() }
