// Package web serves the operator screen: a REST API over the tour
// orchestrator, a websocket feed of its observables and the robot bridge.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-temi/pkg/bridge"
	"github.com/teslashibe/go-temi/pkg/dialogue"
	"github.com/teslashibe/go-temi/pkg/hub"
	"github.com/teslashibe/go-temi/pkg/journal"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/tour"
)

// Controller is the slice of the tour orchestrator the screen drives.
type Controller interface {
	Observables() tour.Observables
	Poses() navigation.Poses
	SpeakForUI(ctx context.Context, text string, cancelQuestion bool) error
	AskOpenQuestionUI(ctx context.Context, info string) (dialogue.Answer, error)
	QueryNamedLocation(ctx context.Context, name string) (dialogue.Outcome, error)
	GoToPose(ctx context.Context, id int) (navigation.Outcome, error)
	SetGreetMode(on bool)
	SetMode(ctx context.Context, m tour.Mode) error
	Start(ctx context.Context) error
	Stop()
	Rehearse(ctx context.Context) error
}

// JournalReader lists recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, kind journal.Kind, limit int) ([]journal.Entry, error)
}

var _ Controller = (*tour.Orchestrator)(nil)
var _ JournalReader = (*journal.Store)(nil)

// Config configures a Server.
type Config struct {
	Port       string
	Controller Controller
	// Journal may be nil, in which case /api/journal reports 404.
	Journal JournalReader
	// Bridge, when set, serves /ws/robot and /api/robots.
	Bridge *bridge.Bridge
	// StaticDir is served at / when set.
	StaticDir string
	Logger    *slog.Logger
}

// Server is the operator screen server.
type Server struct {
	cfg    Config
	app    *fiber.App
	status *hub.Hub
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	latest  tour.Observables
	closing bool

	tasks sync.WaitGroup
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	s := &Server{
		cfg:    cfg,
		status: hub.New("status", cfg.Logger),
		logger: cfg.Logger.With("component", "web.Server"),
		ctx:    context.Background(),
	}
	if cfg.Controller != nil {
		s.latest = cfg.Controller.Observables()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Temi Tour",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/speak", s.handleSpeak)
	api.Post("/question", s.handleQuestion)
	api.Post("/locations/:name", s.handleQueryLocation)
	api.Post("/poses/:id", s.handleGoToPose)
	api.Put("/greet", s.handleGreetMode)
	api.Put("/mode", s.handleMode)
	api.Post("/tour/start", s.handleStart)
	api.Post("/tour/stop", s.handleStop)
	api.Post("/tour/rehearse", s.handleRehearse)
	api.Get("/journal", s.handleJournal)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if cfg.Bridge != nil {
		cfg.Bridge.RegisterRoutes(app)
		cfg.Bridge.RegisterAPIRoutes(api)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub { return s.status }

// Publish stores the latest observables and broadcasts them to every status
// client. It is meant to be the orchestrator's OnChange callback.
func (s *Server) Publish(obs tour.Observables) {
	s.mu.Lock()
	s.latest = obs
	s.mu.Unlock()

	if err := s.status.BroadcastJSON(obs); err != nil {
		s.logger.Warn("encode observables", "error", err)
	}
}

// Latest returns the last published observables.
func (s *Server) Latest() tour.Observables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	s.logger.Info("web server listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Actions started through the
// API run under ctx and have returned when Serve does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ctx = ctx
	s.closing = false
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.status.Run(gctx) })
	g.Go(func() error { return s.app.Listener(ln) })
	g.Go(func() error {
		<-gctx.Done()
		return s.app.Shutdown()
	})

	err := g.Wait()

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.tasks.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// spawn runs an operator action in the background under the serving
// context. It refuses new actions once Serve is shutting down.
func (s *Server) spawn(name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return fiber.NewError(fiber.StatusServiceUnavailable, "server shutting down")
	}
	ctx := s.ctx
	s.tasks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.tasks.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("action failed", "action", name, "error", err)
			return
		}
		s.logger.Debug("action finished", "action", name)
	}()
	return nil
}

// Wait blocks until every background action has returned.
func (s *Server) Wait() { s.tasks.Wait() }
