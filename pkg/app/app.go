package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-temi/pkg/bridge"
	"github.com/teslashibe/go-temi/pkg/completion"
	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/journal"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/tour"
	"github.com/teslashibe/go-temi/pkg/wait"
	"github.com/teslashibe/go-temi/pkg/web"
)

// App is the service. It manages all components and their lifecycle.
type App struct {
	config Config
	// root is handed to components, which scope it themselves.
	root   *slog.Logger
	logger *slog.Logger

	bridge   *bridge.Bridge
	journal  *journal.Store
	provider completion.Provider
	orch     *tour.Orchestrator
	web      *web.Server
	waiter   *wait.Waiter
}

// New creates an App with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		root:   logger,
		logger: logger.With("component", "app.App"),
	}, nil
}

// Init builds every component. Call this after New and before Run.
func (a *App) Init() error {
	cfg := a.config

	a.bridge = bridge.New(a.root)

	if cfg.JournalPath != "" {
		store, err := journal.Open(cfg.JournalPath, a.root)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.journal = store
	}

	if cfg.OpenAI.APIKey != "" {
		client, err := completion.NewClient(
			completion.WithBaseURL(cfg.OpenAI.BaseURL),
			completion.WithAPIKey(cfg.OpenAI.APIKey),
			completion.WithModel(cfg.OpenAI.Model),
			completion.WithLogger(a.root),
		)
		if err != nil {
			return fmt.Errorf("completion: %w", err)
		}
		a.provider = client
	} else {
		a.logger.Warn("OPENAI_API_KEY not set, questions will go unanswered")
	}

	tcfg, err := a.tourConfig()
	if err != nil {
		return err
	}
	orch, err := tour.New(a.bridge, a.provider, tcfg)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	orch.SetGreetMode(cfg.Behavior.GreetMode)
	a.orch = orch

	wcfg := web.Config{
		Port:       cfg.HTTPPort,
		Controller: orch,
		Bridge:     a.bridge,
		StaticDir:  cfg.Behavior.StaticDir,
		Logger:     a.root,
	}
	if a.journal != nil {
		wcfg.Journal = a.journal
	}
	a.web = web.NewServer(wcfg)

	a.logger.Info("initialized", "mode", tcfg.Mode.String(), "port", cfg.HTTPPort,
		"stops", len(tcfg.Itinerary.Stops), "poses", len(tcfg.Poses))
	return nil
}

// tourConfig maps the service configuration onto the orchestrator.
func (a *App) tourConfig() (tour.Config, error) {
	cfg := a.config
	tcfg := tour.DefaultConfig()

	mode, err := tour.ParseMode(cfg.Behavior.Mode)
	if err != nil {
		return tcfg, err
	}
	tcfg.Mode = mode
	tcfg.EngageDelay = cfg.Behavior.EngageDelay
	tcfg.PreventIdleReset = cfg.Behavior.PreventIdleReset

	if cfg.Behavior.ItineraryFile != "" {
		it, err := tour.LoadItinerary(cfg.Behavior.ItineraryFile)
		if err != nil {
			return tcfg, err
		}
		tcfg.Itinerary = it
	}
	tcfg.Poses = navigation.DefaultPoses()
	if cfg.PosesFile != "" {
		poses, err := navigation.LoadPoses(cfg.PosesFile)
		if err != nil {
			return tcfg, err
		}
		tcfg.Poses = poses
	}
	tcfg.Patrol.Poses = tcfg.Poses

	a.waiter = wait.New(
		wait.WithTick(cfg.Timing.Tick),
		wait.WithPoll(cfg.Timing.Poll),
		wait.WithSignal(a.bridge.Signal()),
	)
	tcfg.Waiter = a.waiter
	tcfg.Perception.Interval = cfg.Timing.SampleInterval
	tcfg.Perception.Thresholds = perception.Thresholds{
		CloseDistance:    cfg.Perception.CloseDistance,
		MidRangeDistance: cfg.Perception.MidRangeDistance,
		AngleDeadZone:    cfg.Perception.AngleDeadZone,
		LateralFar:       cfg.Perception.LateralFar,
		LateralMidRange:  cfg.Perception.LateralMidRange,
		LateralClose:     cfg.Perception.LateralClose,
		DepthThreshold:   cfg.Perception.DepthThreshold,
	}
	tcfg.Interrupt = []interrupt.Option{
		interrupt.WithTriggerDelay(cfg.Interrupt.Delay),
		interrupt.WithMaxAttempts(cfg.Interrupt.MaxAttempts),
		interrupt.WithWarningWindow(cfg.Interrupt.WarningWindow),
		interrupt.WithIdleWindow(cfg.Interrupt.IdleWindow),
	}
	tcfg.Greet.Window = cfg.Greet.Window
	tcfg.Greet.Absence = cfg.Greet.Absence
	tcfg.Greet.Cooldown = cfg.Greet.Cooldown
	tcfg.Dialogue.ThinkingMin = cfg.Dialogue.ThinkingMin
	tcfg.Dialogue.ThinkingMax = cfg.Dialogue.ThinkingMax

	if a.journal != nil {
		tcfg.Journal = a.journal
	}
	tcfg.OnChange = func(obs tour.Observables) {
		if a.web != nil {
			a.web.Publish(obs)
		}
	}
	tcfg.Logger = a.root
	return tcfg, nil
}

// Orchestrator returns the tour orchestrator. It is nil before Init.
func (a *App) Orchestrator() *tour.Orchestrator { return a.orch }

// Web returns the operator screen server. It is nil before Init.
func (a *App) Web() *web.Server { return a.web }

// Run serves the operator screen until ctx is cancelled. The orchestrator
// starts once a robot has connected to the bridge.
func (a *App) Run(ctx context.Context) error {
	if a.orch == nil || a.web == nil {
		return errors.New("app: Init must be called before Run")
	}
	a.logger.Info("waiting for the robot", "ws", "/ws/robot")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.web.Run(gctx) })
	g.Go(func() error {
		if err := a.waiter.While(gctx, func() bool { return !a.bridge.Connected() }); err != nil {
			return err
		}
		a.logger.Info("robot ready")
		return a.orch.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases resources held after Run returns.
func (a *App) Shutdown() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("close journal", "error", err)
		}
	}
	a.logger.Info("goodbye")
}
