package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiPolicy = "default-src 'none'; frame-ancestors 'none'"

	// filePolicy lets a stored report render in a same-origin frame. Scripts,
	// forms and external loads stay blocked.
	filePolicy = "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; object-src 'self'; form-action 'none'; frame-ancestors 'self'"
)

// SecurityHeaders sets response hardening headers. Nothing is cached since
// every response may carry patient data.
//
// Paths ending in one of fileSuffixes serve stored report files and get
// filePolicy. Those responses are also sandboxed unless the handler serves a
// PDF, which browser viewers refuse to display inside a sandbox.
func SecurityHeaders(fileSuffixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			h := res.Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			if !servesFile(c.Request().URL.Path, fileSuffixes) {
				h.Set("Content-Security-Policy", apiPolicy)
				h.Set("X-Frame-Options", "DENY")
				return next(c)
			}

			h.Set("Content-Security-Policy", filePolicy+"; sandbox")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			res.Before(func() {
				if strings.HasPrefix(h.Get(echo.HeaderContentType), "application/pdf") {
					h.Set("Content-Security-Policy", filePolicy)
				}
			})
			return next(c)
		}
	}
}

func servesFile(path string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
