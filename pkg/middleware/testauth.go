package middleware

import (
	"github.com/Ramsey-B/vine/pkg/appctx"
	"github.com/labstack/echo/v4"
)

// TestAuth middleware extracts environment_id and user_id from headers when auth is disabled.
// This allows testing the API without a real JWT auth system.
// Headers:
//   - X-Environment-ID: The environment ID
//   - X-User-ID: The user ID
//
// WARNING: Only use this when AUTH_ENABLED=false. Do not enable in production.
func TestAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			// Extract environment ID from header
			environmentID := c.Request().Header.Get(HeaderEnvironmentID)
			if environmentID != "" {
				ctx = appctx.SetEnvironmentID(ctx, environmentID)
			}

			// Extract user ID from header
			userID := c.Request().Header.Get(HeaderUserID)
			if userID != "" {
				ctx = appctx.SetUserID(ctx, userID)
			}

			// Update the request context
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
