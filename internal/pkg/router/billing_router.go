package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CertFox/app/controllers"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/middleware"
)

type BillingRouter struct {
	deps Dependencies
}

func NewBillingRouter(deps Dependencies) *BillingRouter {
	return &BillingRouter{deps: deps}
}

func (h BillingRouter) limiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "RATE_LIMITED",
				"message": "too many requests",
			})
		},
	})
}

func (h BillingRouter) InstallRouter(app *fiber.App) {
	bc := controllers.NewBillingController(h.deps.Billing, h.deps.Oracle)
	pc := controllers.NewAdminPlanController(h.deps.Billing.Catalog())

	// Paystack retries aggressively, so webhooks get their own budget and
	// no CORS.
	app.Post("/billing/webhook/paystack", h.limiter(env.GetEnvInt("WEBHOOK_RATE_LIMIT", 300)), bc.HandlePaystackWebhook)

	billingGroup := app.Group("/billing",
		cors.New(cors.Config{AllowOrigins: env.GetEnv("FRONTEND_URL", "*")}),
		h.limiter(env.GetEnvInt("BILLING_RATE_LIMIT", 120)),
	)
	billingGroup.Get("/plans", bc.HandlePlans)
	billingGroup.Get("/verify", bc.HandleVerify)

	authed := billingGroup.Group("", middleware.RequireAdminAuth())
	authed.Get("/dashboard", bc.HandleDashboard)
	authed.Post("/switch-plan", bc.HandleSwitchPlan)
	authed.Post("/cancel-subscription", bc.HandleCancelSubscription)
	authed.Get("/invoices", bc.HandleInvoices)
	authed.Get("/usage", bc.HandleUsage)
	authed.Post("/payment/subscription/initialize", bc.HandleInitializeSubscription)
	authed.Post("/payment/credits/initialize", bc.HandleInitializeCredits)
	authed.Get("/entitlements", bc.HandleEntitlements)
	authed.Get("/entitlements/:feature", bc.HandleFeatureEntitlement)

	adminGroup := app.Group("/admin/billing", middleware.RequireAdminAuth(), middleware.RequireSuperAdmin)
	adminGroup.Get("/plans", pc.HandleList)
	adminGroup.Post("/plans", pc.HandleCreate)
	adminGroup.Get("/plans/:id", pc.HandleGet)
	adminGroup.Put("/plans/:id", pc.HandleUpdate)
	adminGroup.Delete("/plans/:id", pc.HandleDelete)
}
