package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleAdmin        = "ADMIN"
	RoleDoctor       = "DOCTOR"
	RoleNurse        = "NURSE"
	RoleLabTech      = "LAB_TECH"
	RolePharmacist   = "PHARMACIST"
	RoleReceptionist = "RECEPTIONIST"
)

// TenantRoles are the roles a clinic user may hold.
var TenantRoles = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleLabTech, RolePharmacist, RoleReceptionist}

// ValidTenantRole reports whether role can be assigned to a clinic user.
func ValidTenantRole(role string) bool {
	for _, r := range TenantRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that lets the request through only when the
// caller holds one of roles. There is no implicit bypass: a super-admin
// token does not satisfy a clinic role.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			has := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if has != "" && has == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
