package patient

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("patient not found")
	ErrInvalid  = errors.New("invalid patient")
)

// Patient maps to the patients table.
type Patient struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        string     `json:"patient_id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	Gender           *string    `json:"gender,omitempty"`
	Age              *int       `json:"age,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	Email            *string    `json:"email,omitempty"`
	Address          *string    `json:"address,omitempty"`
	City             *string    `json:"city,omitempty"`
	State            *string    `json:"state,omitempty"`
	DiseaseDiagnosis *string    `json:"disease_diagnosis,omitempty"`
	DiseaseCategory  *string    `json:"disease_category,omitempty"`
	AIExtracted      bool       `json:"ai_extracted"`
	AIConfidence     int        `json:"ai_confidence"`
	CreatedBy        *string    `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// SearchParams filters patient listings. Empty fields are ignored.
type SearchParams struct {
	Name      string
	PatientID string
	City      string
	State     string
	Disease   string
	Category  string
	From      *time.Time
	To        *time.Time
}

func (s SearchParams) IsZero() bool {
	return s == SearchParams{}
}

// Demographics is patient data read from a processed report. It is upserted
// keyed by PatientID.
type Demographics struct {
	PatientID   string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Gender      *string
	Age         *int
	Phone       *string
	Email       *string
	Address     *string
	City        *string
	State       *string
}

// AIUpdate carries the fields a high-confidence extraction may overwrite on
// an existing patient. Nil fields leave the stored value unchanged.
type AIUpdate struct {
	Phone      *string
	Email      *string
	Address    *string
	City       *string
	State      *string
	Diagnosis  *string
	Category   *string
	Confidence int
}

// NewIdentifier returns a generated patient identifier for reports that do
// not carry one.
func NewIdentifier(now time.Time) string {
	return "PAT_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// SplitName splits a full name into first name and the remainder.
func SplitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
