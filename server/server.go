// Package server exposes the chat core over HTTP: JSON for one-shot
// answers, server-sent events for streaming.
package server

import (
	"bufio"
	"encoding/json"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/orchestrator"
	"github.com/dzinemon/rag-app/stream"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Server owns the fiber app and its routes.
type Server struct {
	app    *fiber.App
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	listen string
}

// New builds the HTTP server around an orchestrator.
func New(listen string, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{app: app, orch: orch, logger: logger, listen: listen}

	app.Post("/api/chat", s.handleChat)
	app.Post("/api/chat/stream", s.handleChatStream)
	app.Delete("/api/conversations/:id", s.handleClearConversation)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return s
}

// Run blocks serving requests until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting http server", zap.String("listen", s.listen))
	return s.app.Listen(s.listen)
}

// Shutdown drains in-flight requests and stops listening.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req orchestrator.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request body"})
	}

	resp, err := s.orch.Process(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req orchestrator.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request body"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// The fasthttp ctx doubles as the request context; it is cancelled
	// when the client disconnects, which aborts in-flight model calls.
	ctx := c.Context()
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := s.orch.ProcessStream(ctx, req, func(e stream.Event) error {
			return writeEvent(w, e)
		})
		if err != nil {
			// Validation failures arrive before any event; send them
			// in-band since the status line is already committed.
			s.logger.Warn("stream aborted", zap.Error(err))
			_ = writeEvent(w, stream.Error(errs.UserMessage(err)))
		}
	}))
	return nil
}

func (s *Server) handleClearConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if !s.orch.Clear(id) {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "conversation not found"})
	}
	return c.JSON(map[string]string{"status": "cleared", "conversation_id": id})
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = fiber.StatusBadRequest
	case errs.KindNotFound:
		status = fiber.StatusNotFound
	case errs.KindRateLimit:
		status = fiber.StatusTooManyRequests
	case errs.KindAuth:
		status = fiber.StatusServiceUnavailable
	case errs.KindNetwork:
		status = fiber.StatusBadGateway
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	return c.Status(status).JSON(errorResponse{Error: errs.UserMessage(err)})
}

func writeEvent(w *bufio.Writer, e stream.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
