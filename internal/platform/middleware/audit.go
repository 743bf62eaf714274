package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medreports/medreports/internal/platform/auth"
)

// AuditEntry records who touched which patient data, when, and how.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	ResourceType string
	ResourceID   string
	PatientID    string
	Action       string // read, create, update, delete, upload, download
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

const auditPrefix = "/api/v1/"

// Audit returns middleware that logs every /api/v1 request touching patient
// data. Entries are always written to the logger and, when a recorder is
// given, persisted through it. Recorder failures never fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}

			resourceType, resourceID := extractResource(path)
			entry := AuditEntry{
				Timestamp:    time.Now().UTC(),
				Path:         path,
				Method:       req.Method,
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
				StatusCode:   status,
				UserID:       auth.UserIDFromContext(req.Context()),
				UserRoles:    auth.RolesFromContext(req.Context()),
				RequestID:    requestID(c),
				Action:       auditAction(req.Method, path),
				ResourceType: resourceType,
				ResourceID:   resourceID,
				PatientID:    extractPatientID(c),
			}

			if recorder != nil {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), 2*time.Second)
				if recErr := recorder.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
				cancel()
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// isAuditablePath reports whether path is an API route other than login.
func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, auditPrefix) && !strings.HasPrefix(path, auditPrefix+"auth/")
}

func auditAction(method, path string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		if strings.HasSuffix(path, "/download") {
			return "download"
		}
		return "read"
	case http.MethodPost:
		if strings.HasSuffix(path, "/reports") {
			return "upload"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first path segment after /api/v1/ and, when
// the next segment is a UUID, that id.
//
//   - /api/v1/patients                -> patients, ""
//   - /api/v1/reports/<uuid>/download -> reports, <uuid>
func extractResource(path string) (string, string) {
	segments := strings.Split(strings.TrimPrefix(path, auditPrefix), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	if len(segments) > 1 && isUUIDLike(segments[1]) {
		return segments[0], segments[1]
	}
	return segments[0], ""
}

// extractPatientID finds a patient id in /api/v1/patients/<uuid>/... or the
// patient_id query parameter.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, auditPrefix+"patients/") {
		segments := strings.Split(strings.TrimPrefix(path, auditPrefix+"patients/"), "/")
		if len(segments) > 0 && isUUIDLike(segments[0]) {
			return segments[0]
		}
	}
	return c.QueryParam("patient_id")
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
