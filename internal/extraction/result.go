package extraction

import (
	"errors"
	"time"
)

// Result is the outcome of processing one document.
type Result struct {
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
	ExtractedText string       `json:"extractedText"`
	MedicalInfo   *MedicalInfo `json:"medicalInfo"`
	Confidence    int          `json:"confidence"`
	ProcessedAt   *time.Time   `json:"processedAt,omitempty"`
}

// Failure builds a failed Result. The message is never empty.
func Failure(err error) *Result {
	msg := "extraction failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Result{
		Success:     false,
		Error:       msg,
		MedicalInfo: &MedicalInfo{},
	}
}

// Err returns the failure as an error, nil on success.
func (r *Result) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return errors.New(r.Error)
}
