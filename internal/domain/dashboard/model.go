package dashboard

import "time"

// Filter narrows dashboard aggregates. Zero fields are ignored.
type Filter struct {
	From    *time.Time
	To      *time.Time
	City    string
	State   string
	Disease string
}

type AIStats struct {
	TotalProcessed       int     `json:"totalProcessed"`
	SuccessfulProcessing int     `json:"successfulProcessing"`
	FailedProcessing     int     `json:"failedProcessing"`
	AvgConfidence        int     `json:"avgConfidence"`
	AvgProcessingTime    float64 `json:"avgProcessingTime"`
	AIEnhancedPatients   int     `json:"aiEnhancedPatients"`
}

type DiseaseCount struct {
	Disease string `json:"disease"`
	Count   int    `json:"count"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type AreaDiseaseCount struct {
	City    *string `json:"city"`
	State   *string `json:"state"`
	Disease string  `json:"disease"`
	Count   int     `json:"count"`
}

// AreaCount is one (area, disease) bucket, where area is "city, state", the
// one that is set, or UnknownArea.
type AreaCount struct {
	Area    string
	Disease string
	Count   int
}

const UnknownArea = "Unknown Location"

type Summary struct {
	TotalPatients  int `json:"totalPatients"`
	TotalReports   int `json:"totalReports"`
	UniqueDiseases int `json:"uniqueDiseases"`
	AffectedAreas  int `json:"affectedAreas"`
}

type FilterOptions struct {
	Diseases []string `json:"diseases"`
	Cities   []string `json:"cities"`
	States   []string `json:"states"`
}
