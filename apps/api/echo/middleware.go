package echoapi

import (
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// policyFunc returns a middleware enforcing the role policy of an (object, action) pair.
type policyFunc func(obj, act string) echo.MiddlewareFunc

// allow rejects users whose role may not perform act on obj. Must run after authUser.
func (s *Server) allow(obj, act string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			ok, err := s.deps.Enforcer.Allowed(usr.Role, obj, act)
			if err != nil {
				return errors.Wrap(err, "checking permissions")
			}
			if !ok {
				return errInsufficientPerms
			}
			return next(ctx)
		}
	}
}

// rateLimit limits the requests per client IP.
func rateLimit(requests int, window time.Duration) echo.MiddlewareFunc {
	return echo.WrapMiddleware(httprate.LimitByIP(requests, window))
}

// tokenFromQuery moves the `param` query token to the Authorization header when the header is not set.
// Browsers cannot set headers on websocket upgrades.
func tokenFromQuery(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Header.Get(echo.HeaderAuthorization) == "" {
				if token := ctx.QueryParam(param); token != "" {
					req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
				}
			}
			return next(ctx)
		}
	}
}

// observe records request metrics. Errors are handled here so that the final status is known.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		route := ctx.Path()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
		return nil
	}
}
