package extraction

// PatientRecord is the demographic part of a StructuredRecord.
type PatientRecord struct {
	Name        Optional[string] `json:"name"`
	PatientID   Optional[string] `json:"patientId"`
	DateOfBirth Optional[string] `json:"dateOfBirth"`
	Gender      Optional[string] `json:"gender"`
	Age         Optional[string] `json:"age"`
	Phone       Optional[string] `json:"phone"`
	Email       Optional[string] `json:"email"`
	Address     Optional[string] `json:"address"`
	City        Optional[string] `json:"city"`
	State       Optional[string] `json:"state"`
}

// ClinicalRecord is the medical part of a StructuredRecord.
type ClinicalRecord struct {
	Diagnosis       Optional[string] `json:"diagnosis"`
	DiseaseCategory Optional[string] `json:"diseaseCategory"`
	Symptoms        []string         `json:"symptoms"`
	Medications     []Medication     `json:"medications"`
	Allergies       Optional[string] `json:"allergies"`
	VitalSigns      VitalSigns       `json:"vitalSigns"`
	LabResults      LabResults       `json:"labResults"`
}

// VisitRecord holds the visit dates.
type VisitRecord struct {
	VisitDate       Optional[string] `json:"visitDate"`
	AppointmentDate Optional[string] `json:"appointmentDate"`
}

// StructuredRecord is the nested patient/medical/visit view of one document.
type StructuredRecord struct {
	Patient PatientRecord  `json:"patient"`
	Medical ClinicalRecord `json:"medical"`
	Visit   VisitRecord    `json:"visit"`
}

// AssembleRecord builds the StructuredRecord: first match for scalar leaves,
// full lists for symptoms and medications, and the vital/lab maps as-is.
func AssembleRecord(fm FieldMatches, category string, meds []Medication, vitals VitalSigns, labs LabResults) StructuredRecord {
	symptoms := append([]string{}, fm.Get(FieldSymptoms)...)
	if meds == nil {
		meds = []Medication{}
	}

	diseaseCategory := None[string]()
	if category != "" {
		diseaseCategory = Some(category)
	}

	return StructuredRecord{
		Patient: PatientRecord{
			Name:        fm.First(FieldPatientName),
			PatientID:   fm.First(FieldPatientID),
			DateOfBirth: fm.First(FieldDateOfBirth),
			Gender:      fm.First(FieldGender),
			Age:         fm.First(FieldAge),
			Phone:       fm.First(FieldPhone),
			Email:       fm.First(FieldEmail),
			Address:     fm.First(FieldAddress),
			City:        fm.First(FieldCity),
			State:       fm.First(FieldState),
		},
		Medical: ClinicalRecord{
			Diagnosis:       fm.First(FieldDiagnosis),
			DiseaseCategory: diseaseCategory,
			Symptoms:        symptoms,
			Medications:     meds,
			Allergies:       fm.First(FieldAllergies),
			VitalSigns:      nonNilVitals(vitals),
			LabResults:      nonNilLabs(labs),
		},
		Visit: VisitRecord{
			VisitDate:       fm.First(FieldVisitDate),
			AppointmentDate: fm.First(FieldAppointmentDate),
		},
	}
}
