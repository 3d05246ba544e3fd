package tenantcontext

import (
	"github.com/gofiber/fiber/v2"
)

const localsKey = "TENANT_CONTEXT"

// TenantContext carries the resolved tenant scope for a request. All domain
// writes are partitioned by this tenant.
type TenantContext struct {
	TenantID   uint
	TenantName string
	IsResolved bool
}

// Set stores the tenant context on the request.
func Set(c *fiber.Ctx, tc TenantContext) {
	c.Locals(localsKey, tc)
}

// Get returns the tenant context for the request; an unresolved zero value
// when none was set.
func Get(c *fiber.Ctx) TenantContext {
	if tc, ok := c.Locals(localsKey).(TenantContext); ok {
		return tc
	}
	return TenantContext{}
}
