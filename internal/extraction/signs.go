package extraction

// Medication is one drug mention with its dosage when one was captured.
type Medication struct {
	Name   string           `json:"name"`
	Dosage Optional[string] `json:"dosage"`
}

// VitalSigns maps vital field names to the first matched value.
type VitalSigns map[Field]string

// LabResults maps lab field names to the first matched value, coerced to a
// number when possible.
type LabResults map[Field]LabValue

// ExtractMedications runs both dosage patterns over text. Each pass is
// independent, so one mention can yield two entries unless dedupe is set, in
// which case repeated (name, dosage) pairs keep their first occurrence.
func ExtractMedications(text string, dedupe bool) []Medication {
	meds := make([]Medication, 0)
	seen := make(map[Medication]struct{})
	for _, p := range medicationPatterns {
		for _, m := range Find(p.Re, p.Group, text, All) {
			med := Medication{
				Name:   m.Group(1).OrElse(""),
				Dosage: m.Group(2),
			}
			if dedupe {
				if _, dup := seen[med]; dup {
					continue
				}
				seen[med] = struct{}{}
			}
			meds = append(meds, med)
		}
	}
	return meds
}

// ExtractVitalSigns keeps the first match of each vital pattern. Vitals with
// no match are omitted.
func ExtractVitalSigns(text string) VitalSigns {
	vitals := make(VitalSigns, len(VitalPatterns))
	for _, p := range VitalPatterns {
		if v, ok := p.First(text).Get(); ok {
			vitals[p.Field] = v
		}
	}
	return vitals
}

// ExtractLabResults keeps the first match of each lab pattern and coerces it
// with ParseLabValue. Labs with no match are omitted.
func ExtractLabResults(text string) LabResults {
	labs := make(LabResults, len(LabPatterns))
	for _, p := range LabPatterns {
		if v, ok := p.First(text).Get(); ok {
			labs[p.Field] = ParseLabValue(v)
		}
	}
	return labs
}

// Texts returns the matched text of every lab value. The JSON form of a
// numeric value keeps only the number, so "12." and "12" both encode as 12.
func (l LabResults) Texts() map[Field]string {
	if len(l) == 0 {
		return nil
	}
	out := make(map[Field]string, len(l))
	for f, v := range l {
		out[f] = v.String()
	}
	return out
}

// RestoreTexts puts matched text back on decoded values. A text is only
// applied when it parses to the same value it is attached to.
func (l LabResults) RestoreTexts(texts map[Field]string) {
	for f, text := range texts {
		v, ok := l[f]
		if !ok {
			continue
		}
		parsed := ParseLabValue(text)
		want, numeric := v.Float()
		got, _ := parsed.Float()
		if parsed.IsNumeric() != numeric || (numeric && got != want) || (!numeric && text != v.String()) {
			continue
		}
		l[f] = parsed
	}
}
