package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"recordapi/internal/service"
)

// Version is reported by the root route. Set at build time with -ldflags "-X ...handler.Version=...".
var Version = "dev"

// Pinger is anything whose backing store can be health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers only translate HTTP to service calls and back.
func RegisterRoutes(app *fiber.App, svc service.RecordService, loc *time.Location) {
	app.Get("/", Root(loc))
	app.Get("/health", HealthCheck(svc))
	app.Get("/healthz", LivenessProbe())

	app.Post("/upload", SubmitRecord(svc))
	app.Get("/download/:filename", DownloadFile(svc))

	app.Get("/records", ListRecords(svc))
	app.Get("/records/:id", GetRecord(svc))
}

// Root reports the service version and the server time.
//
//	@Summary	Service info
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/ [get]
func Root(loc *time.Location) fiber.Handler {
	if loc == nil {
		loc = time.UTC
	}
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "recordapi",
			"version": Version,
			"time":    time.Now().In(loc).Format(time.DateTime),
		})
	}
}

// HealthCheck checks document store connectivity only.
//
//	@Summary	Readiness probe
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	errorPayload
//	@Router		/health [get]
func HealthCheck(p Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness probe.
//
//	@Summary	Liveness probe
//	@Tags		system
//	@Success	200
//	@Router		/healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
