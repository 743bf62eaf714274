package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes that bypass authentication: infrastructure
// endpoints and the login route itself.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/db":              true,
	"/metrics":                true,
	"/api/v1/auth/login":      true,
	"/api/v1/supported-types": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
