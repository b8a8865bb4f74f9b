package web

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-temi/pkg/hub"
	"github.com/teslashibe/go-temi/pkg/journal"
	"github.com/teslashibe/go-temi/pkg/tour"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// SpeakRequest is the body of POST /api/speak.
type SpeakRequest struct {
	Text           string `json:"text"`
	CancelQuestion bool   `json:"cancel_question"`
}

// QuestionRequest is the body of POST /api/question.
type QuestionRequest struct {
	Info string `json:"info"`
}

// GreetRequest is the body of PUT /api/greet.
type GreetRequest struct {
	Enabled bool `json:"enabled"`
}

// ModeRequest is the body of PUT /api/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.cfg.Controller == nil {
		return c.JSON(s.Latest())
	}
	return c.JSON(s.cfg.Controller.Observables())
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text required")
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := s.spawn("speak", func(ctx context.Context) error {
		return ctrl.SpeakForUI(ctx, req.Text, req.CancelQuestion)
	}); err != nil {
		return err
	}
	return accepted(c, "speak")
}

func (s *Server) handleQuestion(c *fiber.Ctx) error {
	var req QuestionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := s.spawn("question", func(ctx context.Context) error {
		answer, err := ctrl.AskOpenQuestionUI(ctx, req.Info)
		if err != nil {
			return err
		}
		s.logger.Info("screen question finished", "outcome", answer.Outcome)
		return nil
	}); err != nil {
		return err
	}
	return accepted(c, "question")
}

func (s *Server) handleQueryLocation(c *fiber.Ctx) error {
	// Params aliases the request buffer, which is reused once the handler
	// returns.
	name := utils.CopyString(c.Params("name"))
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "location required")
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := s.spawn("location", func(ctx context.Context) error {
		outcome, err := ctrl.QueryNamedLocation(ctx, name)
		if err != nil {
			return err
		}
		s.logger.Info("location query finished", "location", name, "outcome", outcome)
		return nil
	}); err != nil {
		return err
	}
	return accepted(c, "location")
}

func (s *Server) handleGoToPose(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "pose id must be a number")
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if _, err := ctrl.Poses().ByID(id); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err := s.spawn("pose", func(ctx context.Context) error {
		outcome, err := ctrl.GoToPose(ctx, id)
		if err != nil {
			return err
		}
		s.logger.Info("pose finished", "pose", id, "outcome", outcome.String())
		return nil
	}); err != nil {
		return err
	}
	return accepted(c, "pose")
}

func (s *Server) handleGreetMode(c *fiber.Ctx) error {
	var req GreetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	ctrl.SetGreetMode(req.Enabled)
	return c.JSON(ctrl.Observables())
}

func (s *Server) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	mode, err := tour.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.SetMode(s.serveContext(), mode); err != nil {
		return tourError(err)
	}
	return c.JSON(ctrl.Observables())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.Start(s.serveContext()); err != nil {
		return tourError(err)
	}
	return c.JSON(ctrl.Observables())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	ctrl.Stop()
	return c.JSON(ctrl.Observables())
}

func (s *Server) handleRehearse(c *fiber.Ctx) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	switch ctrl.Observables().State {
	case tour.StateRunning, tour.StateTesting:
		return fiber.NewError(fiber.StatusConflict, tour.ErrRunning.Error())
	}
	if err := s.spawn("rehearse", ctrl.Rehearse); err != nil {
		return err
	}
	return accepted(c, "rehearse")
}

func (s *Server) handleJournal(c *fiber.Ctx) error {
	if s.cfg.Journal == nil {
		return fiber.NewError(fiber.StatusNotFound, "journal disabled")
	}
	limit := c.QueryInt("limit", defaultJournalLimit)
	if limit <= 0 || limit > maxJournalLimit {
		limit = defaultJournalLimit
	}
	entries, err := s.cfg.Journal.Recent(c.UserContext(), journal.Kind(c.Query("kind")), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleStatusWS sends the current observables, then every change.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := jsonMessage(s.Latest())
	if err != nil {
		s.logger.Warn("encode observables", "error", err)
		c.Close()
		return
	}
	hub.NewClient(s.status, c, initial).Run()
}

func (s *Server) controller() (Controller, error) {
	if s.cfg.Controller == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "orchestrator not configured")
	}
	return s.cfg.Controller, nil
}

func (s *Server) serveContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func jsonMessage(v any) (hub.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}

func accepted(c *fiber.Ctx, action string) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"action": action})
}

// tourError maps orchestrator errors to HTTP statuses.
func tourError(err error) error {
	switch {
	case errors.Is(err, tour.ErrNotImplemented):
		return fiber.NewError(fiber.StatusNotImplemented, err.Error())
	case errors.Is(err, tour.ErrRunning):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, tour.ErrEmptyItinerary), errors.Is(err, tour.ErrUnknownMode):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
