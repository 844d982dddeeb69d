package middleware

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CertFox/internal/pkg/usercontext"
)

// EntitlementGuard gates routes on the organization's plan and usage.
type EntitlementGuard struct {
	oracle *entitlements.Oracle
}

func NewEntitlementGuard(oracle *entitlements.Oracle) *EntitlementGuard {
	return &EntitlementGuard{oracle: oracle}
}

// maxParticipantBatch bounds X-Participant-Count.
const maxParticipantBatch = math.MaxInt32

// errInvalidRequest marks checks rejected before the oracle is asked.
var errInvalidRequest = errors.New("invalid request")

type checkFunc func(c *fiber.Ctx, orgID string) (entitlements.Decision, error)

func (g *EntitlementGuard) guard(check checkFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := usercontext.GetOrganizationID(c)
		if orgID == "" {
			return unauthorized(c, "login required")
		}
		d, err := check(c, orgID)
		if err != nil {
			if errors.Is(err, errInvalidRequest) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "VALIDATION",
					"message": err.Error(),
				})
			}
			if errors.Is(err, entitlements.ErrOrganizationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"success": false,
					"error":   "NOT_FOUND",
					"message": "organization not found",
				})
			}
			log.Errorf("[Entitlements] Check failed for org %s: %v", orgID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "INTERNAL",
				"message": "entitlement check failed",
			})
		}
		if d.Allowed {
			return c.Next()
		}
		return Deny(c, d)
	}
}

// Deny writes the upsell response for a denied decision.
func Deny(c *fiber.Ctx, d entitlements.Decision) error {
	status := fiber.StatusForbidden
	kind := "ENTITLEMENT"
	if d.Check == entitlements.CheckCredits {
		status = fiber.StatusPaymentRequired
		kind = "INSUFFICIENT_CREDITS"
	}
	body := fiber.Map{
		"success":         false,
		"error":           kind,
		"message":         d.Message,
		"check":           d.Check,
		"currentPlan":     d.CurrentPlan,
		"requiredPlan":    d.RequiredPlan,
		"feature":         d.Feature,
		"usage":           d.CurrentUsage,
		"currentUsage":    d.CurrentUsage,
		"limit":           d.Limit,
		"upgradeRequired": d.UpgradeRequired,
	}
	if d.SuggestedPlan != "" {
		body["suggestedPlan"] = d.SuggestedPlan
	}
	return c.Status(status).JSON(body)
}

func (g *EntitlementGuard) RequireFeature(f entitlements.Feature) fiber.Handler {
	return g.guard(func(c *fiber.Ctx, orgID string) (entitlements.Decision, error) {
		return g.oracle.RequireFeature(c.UserContext(), orgID, f)
	})
}

func (g *EntitlementGuard) RequirePlan(p entitlements.Plan) fiber.Handler {
	return g.guard(func(c *fiber.Ctx, orgID string) (entitlements.Decision, error) {
		return g.oracle.RequirePlan(c.UserContext(), orgID, p)
	})
}

// RequireEventQuota allows creating one more event this month.
func (g *EntitlementGuard) RequireEventQuota() fiber.Handler {
	return g.guard(func(c *fiber.Ctx, orgID string) (entitlements.Decision, error) {
		return g.oracle.CheckEventLimit(c.UserContext(), orgID)
	})
}

// RequireParticipantQuota allows adding the number of participants given in
// the X-Participant-Count header (default 1).
func (g *EntitlementGuard) RequireParticipantQuota() fiber.Handler {
	return g.guard(func(c *fiber.Ctx, orgID string) (entitlements.Decision, error) {
		raw := c.Get("X-Participant-Count", "1")
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxParticipantBatch {
			return entitlements.Decision{}, fmt.Errorf("%w: X-Participant-Count must be between 1 and %d, got %q",
				errInvalidRequest, maxParticipantBatch, raw)
		}
		return g.oracle.CheckParticipantLimit(c.UserContext(), orgID, n)
	})
}

// RequireCredits allows issuing n credentials.
func (g *EntitlementGuard) RequireCredits(n int64) fiber.Handler {
	return g.guard(func(c *fiber.Ctx, orgID string) (entitlements.Decision, error) {
		return g.oracle.CheckCredits(c.UserContext(), orgID, n)
	})
}
