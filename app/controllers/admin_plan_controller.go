package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
)

// AdminPlanController manages the plan catalog for platform operators.
type AdminPlanController struct {
	catalog *billing.Catalog
}

func NewAdminPlanController(catalog *billing.Catalog) *AdminPlanController {
	return &AdminPlanController{catalog: catalog}
}

// HandleList returns every plan including inactive ones.
func (ac *AdminPlanController) HandleList(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	plans, err := ac.catalog.Plans(ctx, c.QueryBool("active", false))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, plans)
}

func (ac *AdminPlanController) HandleGet(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	plan, err := ac.catalog.Get(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, plan)
}

func (ac *AdminPlanController) HandleCreate(c *fiber.Ctx) error {
	var in billing.PlanInput
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	plan, err := ac.catalog.Create(ctx, in)
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, plan)
}

func (ac *AdminPlanController) HandleUpdate(c *fiber.Ctx) error {
	var in billing.PlanInput
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	plan, err := ac.catalog.Update(ctx, c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, plan)
}

func (ac *AdminPlanController) HandleDelete(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ac.catalog.Delete(ctx, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"deleted": c.Params("id")})
}
