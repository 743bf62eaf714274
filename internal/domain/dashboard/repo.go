package dashboard

import "context"

type Repository interface {
	AIStats(ctx context.Context) (*AIStats, error)
	Diseases(ctx context.Context, f Filter) ([]DiseaseCount, error)
	Categories(ctx context.Context, f Filter) ([]CategoryCount, error)
	DiseaseByArea(ctx context.Context, f Filter) ([]AreaDiseaseCount, error)
	AreaDiseases(ctx context.Context, f Filter) ([]AreaCount, error)
	Summary(ctx context.Context, f Filter) (*Summary, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
}
