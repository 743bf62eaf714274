package dashboard

import (
	"context"
	"math"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AIStats returns processing totals with the average time rounded to two
// decimals.
func (s *Service) AIStats(ctx context.Context) (*AIStats, error) {
	stats, err := s.repo.AIStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.AvgProcessingTime = math.Round(stats.AvgProcessingTime*100) / 100
	return stats, nil
}

func (s *Service) Diseases(ctx context.Context, f Filter) ([]DiseaseCount, error) {
	return s.repo.Diseases(ctx, f)
}

func (s *Service) Categories(ctx context.Context, f Filter) ([]CategoryCount, error) {
	return s.repo.Categories(ctx, f)
}

func (s *Service) DiseaseByArea(ctx context.Context, f Filter) ([]AreaDiseaseCount, error) {
	return s.repo.DiseaseByArea(ctx, f)
}

func (s *Service) Summary(ctx context.Context, f Filter) (*Summary, error) {
	return s.repo.Summary(ctx, f)
}

func (s *Service) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	return s.repo.FilterOptions(ctx)
}

// TopDiseasesByArea groups disease counts under their area, keeping the
// repository's order within each area.
func (s *Service) TopDiseasesByArea(ctx context.Context, f Filter) (map[string][]DiseaseCount, error) {
	rows, err := s.repo.AreaDiseases(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]DiseaseCount)
	for _, r := range rows {
		area := r.Area
		if area == "" {
			area = UnknownArea
		}
		out[area] = append(out[area], DiseaseCount{Disease: r.Disease, Count: r.Count})
	}
	return out, nil
}
