// Package api is the HTTP surface: gateway webhooks on one side, the agent
// workspace REST API on the other.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type ServerOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Verifier     *TokenVerifier
	Limiter      *RateLimiter
}

type Server struct {
	app *fiber.App
}

func NewServer(h *Handler, opts ServerOptions) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	webhook := app.Group("/webhook")
	if opts.Limiter != nil {
		webhook.Use(opts.Limiter.Middleware(func(c *fiber.Ctx) string {
			return c.Params("instance")
		}))
	}
	webhook.Post("/:instance", h.Webhook)

	v1 := app.Group("/api/v1", JWTAuth(opts.Verifier))
	if opts.Limiter != nil {
		v1.Use(opts.Limiter.Middleware(func(c *fiber.Ctx) string {
			if claims := claimsFrom(c); claims != nil {
				return claims.AgentID
			}
			return c.IP()
		}))
	}
	v1.Post("/chats/:id/assign", h.AssignChat)
	v1.Post("/chats/:id/transfer", h.TransferChat)
	v1.Post("/chats/:id/close", h.CloseChat)
	v1.Post("/chats/:id/reopen", h.ReopenChat)
	v1.Post("/chats/:id/read", h.MarkChatRead)
	v1.Post("/chats/:id/messages", h.CreateMessage)
	v1.Patch("/messages/:id", h.EditMessage)
	v1.Delete("/messages/:id", h.DeleteMessage)
	v1.Post("/chats/:id/scheduled", h.CreateScheduled)
	v1.Delete("/scheduled/:id", h.CancelScheduled)

	return &Server{app: app}
}

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }
