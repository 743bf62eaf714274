package extraction

import (
	"encoding/json"
	"fmt"
)

// FieldMatches maps catalog fields to their deduplicated matches. Fields with
// no match are absent; callers treat absent and empty identically.
type FieldMatches map[Field][]string

// Get returns the matches for f, nil when absent.
func (fm FieldMatches) Get(f Field) []string {
	return fm[f]
}

// First returns the first match for f.
func (fm FieldMatches) First(f Field) Optional[string] {
	if v := fm[f]; len(v) > 0 {
		return Some(v[0])
	}
	return None[string]()
}

// ExtractFields runs the whole catalog over normalized text.
func ExtractFields(normalized string) FieldMatches {
	fm := make(FieldMatches)
	for _, p := range Catalog {
		if values := p.Values(normalized, AllUnique); len(values) > 0 {
			fm[p.Field] = values
		}
	}
	return fm
}

// mentionsKey is the JSON key of the raw medications field; "medications"
// itself carries the Medication list.
const mentionsKey = "medicationMentions"

// MedicalInfo is everything derived from one document's text.
type MedicalInfo struct {
	Fields          FieldMatches
	DiseaseCategory string
	Medications     []Medication
	VitalSigns      VitalSigns
	LabResults      LabResults
	StructuredData  StructuredRecord
}

func (mi *MedicalInfo) isZero() bool {
	return mi.Fields == nil && mi.DiseaseCategory == "" && mi.Medications == nil &&
		mi.VitalSigns == nil && mi.LabResults == nil
}

// MarshalJSON flattens the raw field lists next to the derived values. An
// empty MedicalInfo (a failed extraction) serializes as {}.
func (mi *MedicalInfo) MarshalJSON() ([]byte, error) {
	if mi == nil || mi.isZero() {
		return []byte("{}"), nil
	}
	out := make(map[string]interface{}, len(mi.Fields)+5)
	for f, values := range mi.Fields {
		key := string(f)
		if f == FieldMedications {
			key = mentionsKey
		}
		out[key] = values
	}
	meds := mi.Medications
	if meds == nil {
		meds = []Medication{}
	}
	out["diseaseCategory"] = mi.DiseaseCategory
	out["medications"] = meds
	out["vitalSigns"] = nonNilVitals(mi.VitalSigns)
	out["labResults"] = nonNilLabs(mi.LabResults)
	out["structuredData"] = mi.StructuredData
	return json.Marshal(out)
}

func (mi *MedicalInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*mi = MedicalInfo{}
	if len(raw) == 0 {
		return nil
	}

	known := map[string]interface{}{
		"diseaseCategory": &mi.DiseaseCategory,
		"medications":     &mi.Medications,
		"vitalSigns":      &mi.VitalSigns,
		"labResults":      &mi.LabResults,
		"structuredData":  &mi.StructuredData,
	}
	mi.Fields = make(FieldMatches)
	for key, msg := range raw {
		if dst, ok := known[key]; ok {
			if err := json.Unmarshal(msg, dst); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			continue
		}
		f := Field(key)
		if key == mentionsKey {
			f = FieldMedications
		}
		var values []string
		if err := json.Unmarshal(msg, &values); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		mi.Fields[f] = values
	}
	return nil
}

func nonNilVitals(v VitalSigns) VitalSigns {
	if v == nil {
		return VitalSigns{}
	}
	return v
}

func nonNilLabs(l LabResults) LabResults {
	if l == nil {
		return LabResults{}
	}
	return l
}
