package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
)

// Router registers one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Billing *billing.Service
	Oracle  *entitlements.Oracle
	Metrics *metrics.Metrics
	// LimiterStorage backs the rate limiters. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// Checks are run by /health, keyed by component name.
	Checks map[string]func(context.Context) error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewSystemRouter(deps), NewBillingRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
