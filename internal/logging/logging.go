// Package logging provides a categorized zap-backed logging facade for
// deskpilot. Each subsystem logs through its own named logger so that runs
// of the automation loop and the live-watch engine can be filtered apart.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategoryCapture    Category = "capture"    // Screen capture, signatures
	CategoryBadge      Category = "badge"      // Unread-badge detection
	CategoryAction     Category = "action"     // OS action execution
	CategoryPlanner    Category = "planner"    // Automation planning
	CategoryAutomation Category = "automation" // Control loop rounds
	CategoryLiveWatch  Category = "livewatch"  // Live-watch engine rounds
	CategoryBackend    Category = "backend"    // Model backend calls
	CategorySlot       Category = "slot"       // Call slot arbitration
	CategoryConfig     Category = "config"     // Config load/reload
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

func init() {
	root = zap.NewNop()
}

// Initialize installs the process-wide root logger. debug enables the
// debug level and development encoding. Safe to call more than once; the
// last call wins and category loggers are rebuilt lazily.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	SetRoot(logger)
	return nil
}

// SetRoot replaces the root logger. Tests use this to capture output.
func SetRoot(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes the root logger. Errors from stderr sinks are ignored.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
