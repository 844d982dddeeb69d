package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyAdminContext   = "ADMIN_CONTEXT"
	KeyAdminID        = "admin_id"
	KeyOrganizationID = "organization_id"
)
