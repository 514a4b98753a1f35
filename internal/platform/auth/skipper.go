package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes lists "METHOD path" pairs, with echo route patterns, that need
// no bearer token.
var publicRoutes = map[string]bool{
	"GET /health":                                true,
	"GET /health/db":                             true,
	"POST /api/v1/users/register":                true,
	"POST /api/v1/users/send-otp":                true,
	"POST /api/v1/users/verify-otp":              true,
	"POST /api/v1/doctors/register":              true,
	"POST /api/v1/doctors/login":                 true,
	"GET /api/v1/doctors":                        true,
	"GET /api/v1/doctors/:doctorId":              true,
	"GET /api/v1/doctors/:doctorId/slots":        true,
	"GET /api/v1/doctors/:doctorId/availability": true,
}

// AuthSkipper returns true for requests whose route needs no authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
