package extraction

import "regexp"

// Field names one entry of the extraction catalog. The string value is the
// JSON key the field is reported under.
type Field string

const (
	FieldPatientName     Field = "patientName"
	FieldPatientID       Field = "patientId"
	FieldDateOfBirth     Field = "dateOfBirth"
	FieldGender          Field = "gender"
	FieldAge             Field = "age"
	FieldPhone           Field = "phone"
	FieldEmail           Field = "email"
	FieldAddress         Field = "address"
	FieldDiagnosis       Field = "diagnosis"
	FieldSymptoms        Field = "symptoms"
	FieldMedications     Field = "medications"
	FieldAllergies       Field = "allergies"
	FieldBloodPressure   Field = "bloodPressure"
	FieldTemperature     Field = "temperature"
	FieldPulse           Field = "pulse"
	FieldWeight          Field = "weight"
	FieldHeight          Field = "height"
	FieldGlucose         Field = "glucose"
	FieldCholesterol     Field = "cholesterol"
	FieldHemoglobin      Field = "hemoglobin"
	FieldVisitDate       Field = "visitDate"
	FieldAppointmentDate Field = "appointmentDate"
	FieldCity            Field = "city"
	FieldState           Field = "state"
	FieldZipCode         Field = "zipCode"

	// Vital-only and lab-only fields. They have no entry in Catalog.
	FieldRespiratoryRate  Field = "respiratoryRate"
	FieldOxygenSaturation Field = "oxygenSaturation"
	FieldWhiteBloodCell   Field = "whiteBloodCell"
	FieldPlateletCount    Field = "plateletCount"
	FieldCreatinine       Field = "creatinine"
)

// Pattern is a tagged, compiled matcher: the field it populates, the regexp,
// and which capture group carries the value.
type Pattern struct {
	Field Field
	Re    *regexp.Regexp
	Group int
}

func field(f Field, expr string) Pattern {
	return Pattern{Field: f, Re: regexp.MustCompile(expr), Group: 1}
}

const datePattern = `(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`

// Catalog is the fixed table of labeled field patterns applied to normalized
// text. Every pattern is case-insensitive and captures exactly one group.
// Line-scoped value classes exclude '\n' so a value never runs into the next
// labeled line.
var Catalog = []Pattern{
	field(FieldPatientName, `(?i)(?:patient name|name)[:\s]*([a-zA-Z ]+)`),
	field(FieldPatientID, `(?i)(?:patient id|id|mrn)[:\s]*([a-zA-Z0-9\-]+)`),
	field(FieldDateOfBirth, `(?i)(?:dob|date of birth|born)[:\s]*`+datePattern),
	field(FieldGender, `(?i)(?:gender|sex)[:\s]*(male|female|m|f)`),
	field(FieldAge, `(?i)(?:age)[:\s]*(\d+)`),

	field(FieldPhone, `(?i)(?:phone|tel|mobile)[:\s]*(\+?[\d \-()]{10,})`),
	field(FieldEmail, `([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`),
	field(FieldAddress, `(?i)(?:address)[:\s]*([^\n]+)`),

	field(FieldDiagnosis, `(?i)(?:diagnosis|diagnosed with|condition)[:\s]*([^\n.;]+)`),
	field(FieldSymptoms, `(?i)(?:symptoms?|presents? with|complains? of)[:\s]*([^\n.;]+)`),
	field(FieldMedications, `(?i)(?:medications?|drugs?|prescriptions?)[:\s]*([^\n.;]+)`),
	field(FieldAllergies, `(?i)(?:allergies|allergic to)[:\s]*([^\n.;]+)`),

	field(FieldBloodPressure, `(?i)(?:bp|blood pressure)[:\s]*(\d{2,3}/\d{2,3})`),
	field(FieldTemperature, `(?i)(?:temp|temperature)[:\s]*(\d{2,3}\.?\d?°?[fc]?)`),
	field(FieldPulse, `(?i)(?:pulse|heart rate|hr)[:\s]*(\d{2,3})`),
	field(FieldWeight, `(?i)(?:weight)[:\s]*(\d+\.?\d*\s*(?:kg|lbs?))`),
	field(FieldHeight, `(?i)(?:height)[:\s]*(\d+\.?\d*\s*(?:cm|ft|in))`),

	field(FieldGlucose, `(?i)(?:glucose|blood sugar)[:\s]*(\d+\.?\d*)`),
	field(FieldCholesterol, `(?i)(?:cholesterol)[:\s]*(\d+\.?\d*)`),
	field(FieldHemoglobin, `(?i)(?:hemoglobin|hb)[:\s]*(\d+\.?\d*)`),

	field(FieldVisitDate, `(?i)(?:date|visit date|seen on)[:\s]*`+datePattern),
	field(FieldAppointmentDate, `(?i)(?:appointment|follow[- ]?up)[:\s]*`+datePattern),

	field(FieldCity, `(?i)(?:city)[:\s]*([a-zA-Z ]+)`),
	field(FieldState, `(?i)(?:state)[:\s]*([a-zA-Z ]+)`),
	field(FieldZipCode, `(?i)(?:zip|postal)[:\s]*(\d{5})`),
}

// VitalPatterns are applied first-match-only to build VitalSigns. The
// temperature capture stops before any unit marker.
var VitalPatterns = []Pattern{
	field(FieldBloodPressure, `(?i)(?:bp|blood pressure)[:\s]*(\d{2,3}/\d{2,3})`),
	field(FieldTemperature, `(?i)(?:temp|temperature)[:\s]*(\d{2,3}\.?\d?)°?[fc]?`),
	field(FieldPulse, `(?i)(?:pulse|heart rate|hr)[:\s]*(\d{2,3})`),
	field(FieldRespiratoryRate, `(?i)(?:rr|respiratory rate)[:\s]*(\d{1,2})`),
	field(FieldOxygenSaturation, `(?i)(?:o2 sat|oxygen saturation|spo2)[:\s]*(\d{2,3})%?`),
}

// LabPatterns are applied first-match-only to build LabResults.
var LabPatterns = []Pattern{
	field(FieldHemoglobin, `(?i)(?:hb|hemoglobin)[:\s]*(\d+\.?\d*)`),
	field(FieldWhiteBloodCell, `(?i)(?:wbc|white blood cell)[:\s]*(\d+\.?\d*)`),
	field(FieldPlateletCount, `(?i)(?:platelet|plt)[:\s]*(\d+\.?\d*)`),
	field(FieldGlucose, `(?i)(?:glucose|blood sugar)[:\s]*(\d+\.?\d*)`),
	field(FieldCholesterol, `(?i)(?:cholesterol|chol)[:\s]*(\d+\.?\d*)`),
	field(FieldCreatinine, `(?i)(?:creatinine)[:\s]*(\d+\.?\d*)`),
}

// LabUnits maps lab fields to the unit their values are reported in.
var LabUnits = map[Field]string{
	FieldGlucose:        "mg/dL",
	FieldCholesterol:    "mg/dL",
	FieldHemoglobin:     "g/dL",
	FieldWhiteBloodCell: "cells/μL",
	FieldPlateletCount:  "cells/μL",
	FieldCreatinine:     "mg/dL",
}

// medicationPatterns capture (name, dosage). The second pattern requires a
// frequency code, so a mention like "Amoxicillin 500mg daily" matches both.
var medicationPatterns = []Pattern{
	{Re: regexp.MustCompile(`(?i)([a-zA-Z]+(?:in|ol|am|ex|ide|ate|one)?)\s*(\d+\s*(?:mg|ml|g|units?))`), Group: 1},
	{Re: regexp.MustCompile(`(?i)([a-zA-Z]+)\s*(\d+\s*(?:mg|ml|g|units?))\s*(?:daily|bid|tid|qid)`), Group: 1},
}
