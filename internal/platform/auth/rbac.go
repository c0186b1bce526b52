package auth

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleNurse     = "nurse"
	RoleRegistrar = "registrar"
	RolePatient   = "patient"
)

// roleRank orders roles from most to least privileged.
var roleRank = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleRegistrar, RolePatient}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			if slices.Contains(userRoles, RoleAdmin) {
				return next(c)
			}
			for _, required := range roles {
				if slices.Contains(userRoles, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// ActingRole picks the most privileged known role in roles. Unknown or
// missing roles act as a patient.
func ActingRole(roles []string) string {
	for _, r := range roleRank {
		if slices.Contains(roles, r) {
			return r
		}
	}
	return RolePatient
}

// ActingRoleFromContext is ActingRole over the request identity.
func ActingRoleFromContext(ctx context.Context) string {
	return ActingRole(RolesFromContext(ctx))
}
