package api

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/engine"
	"github.com/dmaran/parley/internal/model"
	"github.com/dmaran/parley/internal/presence"
	"github.com/dmaran/parley/internal/rest"
	"github.com/dmaran/parley/internal/status"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Server exposes the daemon's local control API over loopback HTTP. It is
// the only surface the CLI (or any other frontend) talks to; all state
// questions and intents go through the engine.
type Server struct {
	app     *fiber.App
	engine  *engine.Engine
	bus     *bus.Bus
	machine *status.Machine
	tracker *presence.Tracker
	logger  *zap.Logger
	addr    string
}

// New creates the API server and registers its routes.
func New(addr string, eng *engine.Engine, b *bus.Bus, m *status.Machine, tr *presence.Tracker, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "parleyd",
		DisableStartupMessage: true,
	})
	s := &Server{
		app:     app,
		engine:  eng,
		bus:     b,
		machine: m,
		tracker: tr,
		logger:  logger,
		addr:    addr,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.app.Group("/v1")
	v1.Get("/status", s.handleStatus)
	v1.Get("/conversations", s.handleConversations)
	v1.Get("/messages", s.handleMessages)
	v1.Get("/presence", s.handlePresence)
	v1.Get("/events", s.handleEvents)
	v1.Post("/select", s.handleSelect)
	v1.Post("/send", s.handleSend)
	v1.Post("/typing", s.handleTyping)
	v1.Post("/older", s.handleOlder)
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	return s.app.Listen(s.addr)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	State       status.State    `json:"state"`
	Active      model.Selection `json:"active"`
	TotalUnread int             `json:"totalUnread"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		State:       s.machine.Current(),
		Active:      s.engine.Active(),
		TotalUnread: s.engine.TotalUnread(),
	})
}

func (s *Server) handleConversations(c *fiber.Ctx) error {
	return c.JSON(s.engine.Conversations())
}

func (s *Server) handleMessages(c *fiber.Ctx) error {
	return c.JSON(s.engine.Messages())
}

// PresenceResponse is the body of GET /v1/presence.
type PresenceResponse struct {
	Online     []string `json:"online"`
	TypingUser string   `json:"typingUser,omitempty"`
}

func (s *Server) handlePresence(c *fiber.Ctx) error {
	resp := PresenceResponse{Online: s.tracker.OnlineList()}
	if active := s.engine.Active(); !active.IsZero() {
		if user, ok := s.tracker.TypingUser(active.ID); ok {
			resp.TypingUser = user
		}
	}
	return c.JSON(resp)
}

// WireEvent is one bus event on the long-poll wire.
type WireEvent struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// handleEvents long-polls the bus: it blocks until at least one event
// arrives or the timeout passes, then drains whatever else is already
// buffered and returns the batch. Events published before the request
// subscribes are not replayed; pollers own their cadence.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	timeout := time.Duration(c.QueryInt("timeout_ms", 25000)) * time.Millisecond
	if timeout > time.Minute {
		timeout = time.Minute
	}

	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	var out []WireEvent
	select {
	case evt := <-ch:
		out = append(out, toWire(evt))
	case <-time.After(timeout):
		return c.JSON([]WireEvent{})
	}

	for {
		select {
		case evt := <-ch:
			out = append(out, toWire(evt))
		default:
			return c.JSON(out)
		}
	}
}

func toWire(evt bus.Event) WireEvent {
	w := WireEvent{Kind: evt.Kind, Timestamp: evt.Timestamp.UnixMilli()}
	switch p := evt.Payload.(type) {
	case engine.SendFailure:
		w.Payload = fiber.Map{"tempId": p.TempID, "reason": p.Err.Error()}
	case error:
		w.Payload = p.Error()
	default:
		w.Payload = evt.Payload
	}
	return w
}

func (s *Server) handleSelect(c *fiber.Ctx) error {
	var sel model.Selection
	if err := c.BodyParser(&sel); err != nil || sel.IsZero() {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}
	s.engine.Select(sel)
	return c.SendStatus(fiber.StatusNoContent)
}

// SendBody is the body of POST /v1/send. Attachment data is base64.
type SendBody struct {
	Content    string `json:"content"`
	PreviewRef string `json:"previewRef"`
	Attachment *struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Data        string `json:"data"`
	} `json:"attachment"`
}

func (s *Server) handleSend(c *fiber.Ctx) error {
	var body SendBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if body.Content == "" && body.Attachment == nil {
		return fiber.NewError(fiber.StatusBadRequest, "empty message")
	}

	var upload *rest.Upload
	if body.Attachment != nil {
		data, err := base64.StdEncoding.DecodeString(body.Attachment.Data)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "attachment data is not base64")
		}
		upload = &rest.Upload{
			Name:        body.Attachment.Name,
			ContentType: body.Attachment.ContentType,
			Data:        data,
		}
	}

	tempID, err := s.engine.Send(body.Content, upload, body.PreviewRef)
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tempId": tempID})
}

// TypingBody is the body of POST /v1/typing.
type TypingBody struct {
	Active bool `json:"active"`
}

func (s *Server) handleTyping(c *fiber.Ctx) error {
	var body TypingBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if body.Active {
		s.engine.Typing()
	} else {
		s.engine.StopTyping()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleOlder(c *fiber.Ctx) error {
	s.engine.LoadOlder()
	return c.SendStatus(fiber.StatusAccepted)
}
