package report

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("report not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrQueueFull       = errors.New("processing queue is full")
)

// Processing log states.
const (
	StatusProcessing   = "processing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusNotProcessed = "not_processed"
)

// MaxStoredText bounds the extracted text kept on the processing log.
const MaxStoredText = 5000

// Report maps to medical_reports joined with its latest processing log.
type Report struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Title         *string    `json:"report_title,omitempty"`
	Description   *string    `json:"report_description,omitempty"`
	FileName      string     `json:"file_name"`
	BlobID        string     `json:"-"`
	FileType      string     `json:"file_type"`
	FileSize      int64      `json:"file_size"`
	FileHash      string     `json:"file_hash"`
	UploadedBy    *string    `json:"uploaded_by,omitempty"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	Status        *string    `json:"processing_status,omitempty"`
	Confidence    *int       `json:"confidence_score,omitempty"`
	AIProcessedAt *time.Time `json:"ai_processed_at,omitempty"`
}

// ProcessingLog maps to ai_processing_log.
type ProcessingLog struct {
	ID             uuid.UUID `json:"id"`
	ReportID       uuid.UUID `json:"report_id"`
	PatientID      *string   `json:"patient_id,omitempty"`
	FileName       string    `json:"file_name"`
	Status         string    `json:"processing_status"`
	ExtractedText  *string   `json:"extracted_text,omitempty"`
	Confidence     *int      `json:"confidence_score,omitempty"`
	ProcessingTime *float64  `json:"processing_time,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// LogUpdate finishes a processing log row.
type LogUpdate struct {
	Status         string
	PatientID      *string
	ExtractedText  *string
	Confidence     *int
	ProcessingTime float64
	ErrorMessage   *string
}

// AIStatus is the processing state of one report as shown to clients.
type AIStatus struct {
	Status         string     `json:"status"`
	Confidence     *int       `json:"confidence,omitempty"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	ProcessingTime *float64   `json:"processingTime,omitempty"`
	Error          *string    `json:"error,omitempty"`
}

// MedicalRecord maps to medical_records. PatientID is the identifier read
// from the document, not the owning patient's row id.
type MedicalRecord struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       string     `json:"patient_id"`
	ReportID        uuid.UUID  `json:"report_id"`
	Diagnosis       *string    `json:"diagnosis,omitempty"`
	DiseaseCategory *string    `json:"disease_category,omitempty"`
	Symptoms        []string   `json:"symptoms"`
	Allergies       *string    `json:"allergies,omitempty"`
	VisitDate       *time.Time `json:"visit_date,omitempty"`
	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	Confidence      int        `json:"confidence_score"`
	CreatedAt       time.Time  `json:"created_at"`
}

type VitalSigns struct {
	BloodPressure    *string  `json:"blood_pressure,omitempty"`
	HeartRate        *int     `json:"heart_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty"`
}

func (v VitalSigns) IsZero() bool {
	return v == VitalSigns{}
}

type Medication struct {
	Name   string  `json:"medication_name"`
	Dosage *string `json:"dosage,omitempty"`
}

type LabResult struct {
	TestName string   `json:"test_name"`
	Value    *float64 `json:"test_value,omitempty"`
	RawValue string   `json:"raw_value"`
	Unit     *string  `json:"unit,omitempty"`
}

// MedicalData is everything persisted from one processed report.
type MedicalData struct {
	Record      *MedicalRecord `json:"medicalRecord"`
	VitalSigns  *VitalSigns    `json:"vitalSigns,omitempty"`
	Medications []Medication   `json:"medications"`
	LabResults  []LabResult    `json:"labResults"`
}

// ExtractedText is the text view of a report.
type ExtractedText struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}
