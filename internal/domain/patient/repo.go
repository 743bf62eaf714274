package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error)

	// UpsertDemographics inserts or refreshes the patient keyed by d.PatientID.
	UpsertDemographics(ctx context.Context, d Demographics) error
	// ApplyAIUpdate writes high-confidence extraction results onto a patient.
	ApplyAIUpdate(ctx context.Context, id uuid.UUID, u AIUpdate) error
}
