package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ScopeAll           = "*"
	ScopeCodesRead     = "codes:read"
	ScopeCrosswalksRun = "crosswalks:run"
)

// RequireScope returns middleware that checks the caller holds scope.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, granted := range ScopesFromContext(c.Request().Context()) {
				if matchScope(granted, scope) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required scope: %s", scope))
		}
	}
}

// matchScope checks if a granted scope covers the required scope.
// "*" matches everything and "codes:*" matches any codes action.
func matchScope(granted, required string) bool {
	if granted == required || granted == ScopeAll {
		return true
	}
	res, action, ok := strings.Cut(granted, ":")
	if !ok || action != "*" {
		return false
	}
	rRes, _, _ := strings.Cut(required, ":")
	return res == rRes
}
