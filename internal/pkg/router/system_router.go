package router

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

type SystemRouter struct {
	deps Dependencies
}

func NewSystemRouter(deps Dependencies) *SystemRouter {
	return &SystemRouter{deps: deps}
}

func (h SystemRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.health)
	if h.deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.deps.Metrics.Handler()))
	}
}

func (h SystemRouter) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps.Checks))
	for name := range h.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.StatusOK
	components := fiber.Map{}
	for _, name := range names {
		if err := h.deps.Checks[name](ctx); err != nil {
			log.Warnf("[Health] %s unhealthy: %v", name, err)
			components[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": status == fiber.StatusOK,
		"data":    fiber.Map{"components": components},
	})
}
