package usercontext

import "github.com/gofiber/fiber/v2"

// AdminContext represents the authenticated admin of a request
type AdminContext struct {
	AdminID         string `json:"admin_id"`
	OrganizationID  string `json:"organization_id"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// SetAdminContext stores ctx and the legacy id locals on c
func SetAdminContext(c *fiber.Ctx, ctx AdminContext) {
	c.Locals(KeyAdminContext, ctx)
	c.Locals(KeyAdminID, ctx.AdminID)
	c.Locals(KeyOrganizationID, ctx.OrganizationID)
}

// GetAdminContext retrieves the admin context from fiber context
// Returns an anonymous context if none is set
func GetAdminContext(c *fiber.Ctx) AdminContext {
	if ctx, ok := c.Locals(KeyAdminContext).(AdminContext); ok {
		return ctx
	}
	return AdminContext{}
}

// IsAuthenticated checks if the request carries a valid admin token
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAdminContext(c).IsAuthenticated
}

// GetAdminID returns the current admin's ID, or "" if anonymous
func GetAdminID(c *fiber.Ctx) string {
	return GetAdminContext(c).AdminID
}

// GetOrganizationID returns the organization the admin acts for
func GetOrganizationID(c *fiber.Ctx) string {
	return GetAdminContext(c).OrganizationID
}

// HasRole checks the admin's role
func HasRole(c *fiber.Ctx, role string) bool {
	return GetAdminContext(c).Role == role
}
