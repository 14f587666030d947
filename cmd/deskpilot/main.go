package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deskpilot/internal/action"
	"deskpilot/internal/automation"
	"deskpilot/internal/backend"
	"deskpilot/internal/badge"
	"deskpilot/internal/callslot"
	"deskpilot/internal/capture"
	"deskpilot/internal/config"
	"deskpilot/internal/livewatch"
	"deskpilot/internal/logging"
	"deskpilot/internal/macos"
	"deskpilot/internal/planner"
	"deskpilot/internal/status"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deskpilot",
	Short: "deskpilot - autonomous macOS desktop assistant core",
	Long: `deskpilot operates the desktop toward a stated goal and can quietly
watch the screen for noteworthy changes.

The automation loop captures the screen, plans a short batch of UI
actions with a vision model (with a fast local shortcut for unread
message badges), executes them, and repeats until the goal is done.
The watch loop samples the screen on an interval, analyzes only when
something actually changed, and raises deduplicated notifications.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// runCmd executes one automation goal
var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run one automation goal to completion",
	Long: `Drives the desktop toward the goal and prints the final answer.

Example:
  deskpilot run "check unread messages in WeCom"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

// watchCmd starts the live-watch engine
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the screen until interrupted",
	Long: `Starts the live-watch engine: periodic screen sampling, change
detection, and model analysis with deduplicated notifications. Edits to
the config file are applied to the running engine. Stop with Ctrl-C.`,
	RunE: runWatch,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildCore wires the shared collaborators: providers, backend, arbiter.
func buildCore(ctx context.Context) (*capture.Grabber, backend.Backend, *callslot.Arbiter, error) {
	inner, err := backend.New(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create backend: %w", err)
	}

	scope := capture.ScopeFull
	if cfg.Capture.Scope == string(capture.ScopeWindow) {
		scope = capture.ScopeWindow
	}
	grabber := &capture.Grabber{
		Screen: &macos.Screen{},
		Window: &macos.Window{},
		Scope:  scope,
	}
	arbiter := &callslot.Arbiter{}
	return grabber, inner, arbiter, nil
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grabber, inner, arbiter, err := buildCore(ctx)
	if err != nil {
		return err
	}
	slotted := &backend.Slotted{Inner: inner, Arbiter: arbiter}

	runner := &automation.Runner{
		Grabber:  grabber,
		Planner:  &planner.Planner{Backend: slotted, Cfg: cfg.Automation},
		Executor: &action.Executor{OS: &macos.Actions{}},
		Detector: badge.New(badge.DefaultDetectorConfig()),
		Backend:  slotted,
		Cfg:      cfg.Automation,
		Status:   status.LogSink{Category: logging.CategoryAutomation},
	}

	res, err := runner.Run(ctx, goal)
	if err != nil {
		return err
	}
	fmt.Println(res.Answer)
	if res.Paused {
		os.Exit(130)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grabber, inner, arbiter, err := buildCore(ctx)
	if err != nil {
		return err
	}

	engine := livewatch.NewEngine(cfg.LiveWatch)
	engine.Grabber = grabber
	engine.Backend = inner
	engine.Arbiter = arbiter
	engine.Status = status.LogSink{Category: logging.CategoryLiveWatch}
	engine.Notify = status.LogSink{Category: logging.CategoryLiveWatch}

	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Stop()

	// Apply config file edits to the running engine.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
			engine.UpdateConfig(updated.LiveWatch)
		})
		if err != nil {
			logging.Get(logging.CategoryConfig).Warnw("config watcher unavailable", "error", err)
		} else if err := watcher.Start(); err != nil {
			logging.Get(logging.CategoryConfig).Warnw("config watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	<-ctx.Done()
	return nil
}
