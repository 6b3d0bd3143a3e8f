// Package httpapi is the REST facade: Fiber router construction (error
// handler, CORS, per-route handler wiring), request correlation, and the
// conditional ETag/If-Match/If-Unmodified-Since negotiation on GET /labels.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/tracing"
)

// NewRouter builds the Fiber application exposing every endpoint.
func NewRouter(deps *Deps) *fiber.App {
	h := NewHandler(deps)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return WithError(c, err)
		},
	})

	app.Use(cors.New())
	app.Use(withTracing())
	app.Use(withLogging(deps.Logger))

	app.Get("/", h.Root)
	app.Post("/benchmark", h.CreateBRC)
	app.Get("/benchmark/:id", h.GetBRC)
	app.Get("/benchmark/:id/key", h.GetBRCKey)
	app.Get("/benchmark/:id/log", h.GetBRCLog)
	app.Get("/key/:id", h.GetKey)
	app.Get("/labels", h.GetLabels)

	return app
}

// withTracing stamps every request with a correlation ID and opens a root
// span for it.
func withTracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID = tracing.NewRequestID()
		}

		c.Set(fiber.HeaderXRequestID, reqID)

		ctx := tracing.ContextWithRequestID(c.UserContext(), reqID)

		ctx, span := tracing.Start(ctx, "http."+c.Route().Name)
		defer span.End()

		c.SetUserContext(ctx)

		return c.Next()
	}
}

// withLogging stamps each request's context with the ambient logger so
// every handler can log through mlog.FromContext.
func withLogging(logger mlog.Logger) fiber.Handler {
	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	return func(c *fiber.Ctx) error {
		ctx := mlog.ContextWithLogger(c.UserContext(), logger)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
