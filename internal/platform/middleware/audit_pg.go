package middleware

import (
	"context"
	"fmt"

	"github.com/medreports/medreports/internal/platform/db"
)

// PGAuditRecorder writes audit entries to the audit_log table.
type PGAuditRecorder struct {
	db db.Querier
}

func NewPGAuditRecorder(q db.Querier) *PGAuditRecorder {
	return &PGAuditRecorder{db: q}
}

func (r *PGAuditRecorder) RecordAccess(ctx context.Context, e AuditEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (request_id, user_id, action, resource_type, resource_id,
			patient_id, method, path, status_code, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.RequestID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.PatientID, e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
