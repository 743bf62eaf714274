package report

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/extraction"
)

// LabUnit returns the unit stored with a lab result, if one is known.
func LabUnit(test extraction.Field) *string {
	if u, ok := extraction.LabUnits[test]; ok {
		return &u
	}
	return nil
}

var (
	leadingIntRe   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloatRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)
)

// leadingInt parses the integer prefix of s, so "72 bpm" and "98.6" give 72
// and 98.
func leadingInt(s string) *int {
	m := leadingIntRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

func leadingFloat(s string) *float64 {
	m := leadingFloatRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func optional(v string, ok bool) *string {
	if !ok || v == "" {
		return nil
	}
	return &v
}

func vitalsFrom(v extraction.VitalSigns) VitalSigns {
	var out VitalSigns
	if bp, ok := v[extraction.FieldBloodPressure]; ok {
		out.BloodPressure = optional(bp, true)
	}
	if p, ok := v[extraction.FieldPulse]; ok {
		out.HeartRate = leadingInt(p)
	}
	if t, ok := v[extraction.FieldTemperature]; ok {
		out.Temperature = leadingFloat(t)
	}
	if rr, ok := v[extraction.FieldRespiratoryRate]; ok {
		out.RespiratoryRate = leadingInt(rr)
	}
	if o2, ok := v[extraction.FieldOxygenSaturation]; ok {
		out.OxygenSaturation = leadingInt(o2)
	}
	return out
}

func medicationsFrom(meds []extraction.Medication) []Medication {
	out := make([]Medication, 0, len(meds))
	for _, m := range meds {
		if m.Name == "" {
			continue
		}
		out = append(out, Medication{Name: m.Name, Dosage: m.Dosage.Ptr()})
	}
	return out
}

// labResultsFrom orders labs by test name so inserts are deterministic.
func labResultsFrom(labs extraction.LabResults) []LabResult {
	out := make([]LabResult, 0, len(labs))
	for field, v := range labs {
		lr := LabResult{TestName: string(field), RawValue: v.String(), Unit: LabUnit(field)}
		if f, ok := v.Float(); ok {
			lr.Value = &f
		} else {
			lr.Value = leadingFloat(v.String())
		}
		out = append(out, lr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestName < out[j].TestName })
	return out
}

func demographicsFrom(identifier string, p extraction.PatientRecord) patient.Demographics {
	name, _ := p.Name.Get()
	first, last := patient.SplitName(name)
	d := patient.Demographics{
		PatientID: identifier,
		FirstName: first,
		LastName:  last,
		Gender:    p.Gender.Ptr(),
		Phone:     p.Phone.Ptr(),
		Email:     p.Email.Ptr(),
		Address:   p.Address.Ptr(),
		City:      p.City.Ptr(),
		State:     p.State.Ptr(),
	}
	if dob, ok := p.DateOfBirth.Get(); ok {
		d.DateOfBirth = ParseClinicalDate(dob)
	}
	if age, ok := p.Age.Get(); ok {
		d.Age = leadingInt(age)
	}
	return d
}

func aiUpdateFrom(rec extraction.StructuredRecord, confidence int) patient.AIUpdate {
	return patient.AIUpdate{
		Phone:      rec.Patient.Phone.Ptr(),
		Email:      rec.Patient.Email.Ptr(),
		Address:    rec.Patient.Address.Ptr(),
		City:       rec.Patient.City.Ptr(),
		State:      rec.Patient.State.Ptr(),
		Diagnosis:  rec.Medical.Diagnosis.Ptr(),
		Category:   rec.Medical.DiseaseCategory.Ptr(),
		Confidence: confidence,
	}
}

// persist writes a successful extraction. It must run inside a transaction:
// the demographics upsert, the medical record with its vitals, medications
// and labs, the completed log entry and the optional owner update either all
// land or none do. It returns the patient identifier the record was filed
// under.
func (s *Service) persist(ctx context.Context, rep *Report, logID uuid.UUID, res *extraction.Result, elapsed float64) (string, error) {
	var structured extraction.StructuredRecord
	if res.MedicalInfo != nil {
		structured = res.MedicalInfo.StructuredData
	}

	identifier, ok := structured.Patient.PatientID.Get()
	if !ok || strings.TrimSpace(identifier) == "" {
		identifier = patient.NewIdentifier(s.now())
	}

	if structured.Patient.Name.Valid() {
		if err := s.patients.UpsertDemographics(ctx, demographicsFrom(identifier, structured.Patient)); err != nil {
			return "", err
		}
	}

	rec := &MedicalRecord{
		PatientID:       identifier,
		ReportID:        rep.ID,
		Diagnosis:       structured.Medical.Diagnosis.Ptr(),
		DiseaseCategory: structured.Medical.DiseaseCategory.Ptr(),
		Symptoms:        structured.Medical.Symptoms,
		Allergies:       structured.Medical.Allergies.Ptr(),
		Confidence:      res.Confidence,
	}
	if v, ok := structured.Visit.VisitDate.Get(); ok {
		rec.VisitDate = ParseClinicalDate(v)
	}
	if v, ok := structured.Visit.AppointmentDate.Get(); ok {
		rec.AppointmentDate = ParseClinicalDate(v)
	}
	if err := s.reports.InsertRecord(ctx, rec); err != nil {
		return "", err
	}

	if len(structured.Medical.VitalSigns) > 0 {
		if err := s.reports.InsertVitals(ctx, rec, vitalsFrom(structured.Medical.VitalSigns)); err != nil {
			return "", err
		}
	}
	if err := s.reports.InsertMedications(ctx, rec, medicationsFrom(structured.Medical.Medications)); err != nil {
		return "", err
	}
	if err := s.reports.InsertLabResults(ctx, rec, labResultsFrom(structured.Medical.LabResults)); err != nil {
		return "", err
	}

	text := truncateRunes(res.ExtractedText, MaxStoredText)
	confidence := res.Confidence
	if err := s.reports.UpdateLog(ctx, logID, LogUpdate{
		Status:         StatusCompleted,
		PatientID:      &identifier,
		ExtractedText:  &text,
		Confidence:     &confidence,
		ProcessingTime: elapsed,
	}); err != nil {
		return "", err
	}

	if res.Confidence >= s.cfg.AutoUpdateConfidence {
		if err := s.patients.ApplyAIUpdate(ctx, rep.PatientID, aiUpdateFrom(structured, res.Confidence)); err != nil {
			return "", fmt.Errorf("update owning patient: %w", err)
		}
	}
	return identifier, nil
}
