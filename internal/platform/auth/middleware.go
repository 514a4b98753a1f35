package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	ID   uuid.UUID
	Role string
}

func (p Principal) IsPatient() bool { return p.Role == RolePatient }
func (p Principal) IsDoctor() bool  { return p.Role == RoleDoctor }

type JWTConfig struct {
	Issuer *TokenIssuer
	// Skipper lets public routes through without a token. A bearer token on a
	// skipped route is still parsed so handlers can see who is calling.
	Skipper func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			public := cfg.Skipper != nil && cfg.Skipper(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if public {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := cfg.Issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			p := Principal{ID: id, Role: claims.Role}
			c.Set("user_id", p.ID.String())
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))

			return next(c)
		}
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, _ := PrincipalFromContext(ctx)
	return p.ID
}

func RolesFromContext(ctx context.Context) []string {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Role == "" {
		return nil
	}
	return []string{p.Role}
}
