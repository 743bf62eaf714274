package report

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*Report, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error)

	CreateLog(ctx context.Context, l *ProcessingLog) error
	UpdateLog(ctx context.Context, id uuid.UUID, u LogUpdate) error
	LatestLog(ctx context.Context, reportID uuid.UUID) (*ProcessingLog, error)

	InsertRecord(ctx context.Context, rec *MedicalRecord) error
	InsertVitals(ctx context.Context, rec *MedicalRecord, v VitalSigns) error
	InsertMedications(ctx context.Context, rec *MedicalRecord, meds []Medication) error
	InsertLabResults(ctx context.Context, rec *MedicalRecord, labs []LabResult) error
	GetMedicalData(ctx context.Context, reportID uuid.UUID) (*MedicalData, error)
}
