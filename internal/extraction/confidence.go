package extraction

import "math"

// keyField is one of the fields the confidence score checks for presence.
type keyField struct {
	name    string
	present func(mi *MedicalInfo) bool
}

func hasMatches(f Field) func(*MedicalInfo) bool {
	return func(mi *MedicalInfo) bool { return len(mi.Fields.Get(f)) > 0 }
}

var keyFields = []keyField{
	{"patientName", hasMatches(FieldPatientName)},
	{"diagnosis", hasMatches(FieldDiagnosis)},
	{"medications", func(mi *MedicalInfo) bool { return len(mi.Medications) > 0 }},
	{"vitalSigns", func(mi *MedicalInfo) bool { return len(mi.VitalSigns) > 0 }},
	{"symptoms", hasMatches(FieldSymptoms)},
	{"visitDate", hasMatches(FieldVisitDate)},
	{"patientId", hasMatches(FieldPatientID)},
}

// Confidence is a completeness heuristic, not a statistical confidence: the
// percentage of the seven key fields that were populated, rounded to an
// integer in [0, 100]. It reads the raw MedicalInfo, not the structured record.
func Confidence(mi *MedicalInfo) int {
	if mi == nil {
		return 0
	}
	present := 0
	for _, kf := range keyFields {
		if kf.present(mi) {
			present++
		}
	}
	return int(math.Round(100 * float64(present) / float64(len(keyFields))))
}
