package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CertFox/internal/pkg/usercontext"
)

const paystackSignatureHeader = "x-paystack-signature"

// BillingController serves the tenant facing /billing routes.
type BillingController struct {
	service *billing.Service
	oracle  *entitlements.Oracle
}

func NewBillingController(service *billing.Service, oracle *entitlements.Oracle) *BillingController {
	return &BillingController{service: service, oracle: oracle}
}

type switchPlanRequest struct {
	NewPlanID string `json:"newPlanId" validate:"required"`
}

type cancelSubscriptionRequest struct {
	CancelImmediately bool `json:"cancelImmediately"`
}

type initializeSubscriptionRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

type initializeCreditsRequest struct {
	CreditPackage *billing.CreditPackage `json:"creditPackage" validate:"required"`
}

// entitlementView is the GET /billing/entitlements projection.
type entitlementView struct {
	*entitlements.Entitlement
	Granted []entitlements.Feature `json:"granted"`
}

func (bc *BillingController) HandleDashboard(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	dashboard, err := bc.service.Dashboard(ctx, usercontext.GetAdminID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, dashboard)
}

// HandlePlans lists the active catalog. It is public.
func (bc *BillingController) HandlePlans(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	plans, err := bc.service.Catalog().ActivePlans(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, plans)
}

func (bc *BillingController) HandleSwitchPlan(c *fiber.Ctx) error {
	var req switchPlanRequest
	if err := bindJSON(c, &req, false); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	quote, err := bc.service.SwitchPlan(ctx, usercontext.GetAdminID(c), strings.TrimSpace(req.NewPlanID))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, quote)
}

func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	var req cancelSubscriptionRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := bc.service.CancelSubscription(ctx, usercontext.GetAdminID(c), req.CancelImmediately)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, result)
}

func (bc *BillingController) HandleInvoices(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := bc.service.Invoices(ctx,
		usercontext.GetAdminID(c),
		c.QueryInt("page", 1),
		c.QueryInt("limit", 10),
		models.InvoiceStatus(strings.TrimSpace(c.Query("status"))),
	)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, page)
}

func (bc *BillingController) HandleUsage(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	usage, err := bc.service.Usage(ctx, usercontext.GetAdminID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, usage)
}

func (bc *BillingController) HandleInitializeSubscription(c *fiber.Ctx) error {
	var req initializeSubscriptionRequest
	if err := bindJSON(c, &req, false); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	session, err := bc.service.InitializeSubscription(ctx, usercontext.GetAdminID(c), strings.TrimSpace(req.PlanID))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, session)
}

func (bc *BillingController) HandleInitializeCredits(c *fiber.Ctx) error {
	var req initializeCreditsRequest
	if err := bindJSON(c, &req, false); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	session, err := bc.service.InitializeCreditPurchase(ctx, usercontext.GetAdminID(c), *req.CreditPackage)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, session)
}

// HandleVerify settles a payment after the checkout redirect. Paystack sends
// the reference as trxref on the callback URL.
func (bc *BillingController) HandleVerify(c *fiber.Ctx) error {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		reference = strings.TrimSpace(c.Query("trxref"))
	}
	if reference == "" {
		return respondError(c, validationError("reference is required"))
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := bc.service.VerifyPayment(ctx, reference)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, outcome)
}

// HandlePaystackWebhook acknowledges provider events. Errors that should be
// retried by Paystack are answered with a non 2xx status.
func (bc *BillingController) HandlePaystackWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(paystackSignatureHeader))

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := bc.service.HandleWebhook(ctx, rawBody, signature)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, result)
}

func (bc *BillingController) HandleEntitlements(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	ent, err := bc.oracle.For(ctx, usercontext.GetOrganizationID(c))
	if err != nil {
		return respondError(c, err)
	}
	view := entitlementView{Entitlement: ent, Granted: []entitlements.Feature{}}
	for _, f := range entitlements.Features() {
		if ent.Has(f) {
			view.Granted = append(view.Granted, f)
		}
	}
	return respondOK(c, view)
}

// HandleFeatureEntitlement answers whether one feature is available. A
// denial is a normal answer here, not an error.
func (bc *BillingController) HandleFeatureEntitlement(c *fiber.Ctx) error {
	feature := entitlements.Feature(c.Params("feature"))
	if !feature.Valid() {
		return respondError(c, validationError("unknown feature "+string(feature)))
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	decision, err := bc.oracle.RequireFeature(ctx, usercontext.GetOrganizationID(c), feature)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, decision)
}
