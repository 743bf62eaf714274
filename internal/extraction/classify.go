package extraction

import "strings"

// GeneralCategory is reported when no disease keyword occurs in the text.
const GeneralCategory = "general"

// DiseaseCategory is a named keyword list used for classification.
type DiseaseCategory struct {
	Name     string
	Keywords []string
}

// DiseaseCategories is ordered; the order breaks ties.
var DiseaseCategories = []DiseaseCategory{
	{Name: "cardiovascular", Keywords: []string{"heart", "cardiac", "hypertension", "stroke", "angina", "arrhythmia"}},
	{Name: "respiratory", Keywords: []string{"lung", "asthma", "copd", "pneumonia", "bronchitis", "respiratory"}},
	{Name: "diabetes", Keywords: []string{"diabetes", "diabetic", "insulin", "glucose", "blood sugar"}},
	{Name: "neurological", Keywords: []string{"brain", "neurological", "seizure", "migraine", "alzheimer", "parkinson"}},
	{Name: "orthopedic", Keywords: []string{"bone", "joint", "fracture", "arthritis", "spine", "orthopedic"}},
	{Name: "infectious", Keywords: []string{"infection", "bacterial", "viral", "fever", "flu", "covid"}},
	{Name: "mental_health", Keywords: []string{"depression", "anxiety", "bipolar", "mental", "psychiatric"}},
	{Name: "cancer", Keywords: []string{"cancer", "tumor", "oncology", "chemotherapy", "radiation", "malignant"}},
}

// CategoryScores counts keyword occurrences per category, in declaration order.
func CategoryScores(text string) []int {
	lower := strings.ToLower(text)
	scores := make([]int, len(DiseaseCategories))
	for i, cat := range DiseaseCategories {
		for _, kw := range cat.Keywords {
			scores[i] += strings.Count(lower, kw)
		}
	}
	return scores
}

// ClassifyDisease returns the category with the strictly highest keyword
// count, the earliest declared category on a tie, or GeneralCategory when
// nothing scores.
func ClassifyDisease(text string) string {
	best, bestScore := GeneralCategory, 0
	for i, score := range CategoryScores(text) {
		if score > bestScore {
			best, bestScore = DiseaseCategories[i].Name, score
		}
	}
	return best
}
