package dashboard

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/medreports/medreports/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

type repoPG struct {
	db db.Querier
}

func NewRepo(q db.Querier) Repository {
	return &repoPG{db: q}
}

func nonBlank(col string) exp.Expression {
	return goqu.And(goqu.I(col).IsNotNull(), goqu.I(col).Neq(""))
}

func dateConditions(f Filter, col string) []exp.Expression {
	var where []exp.Expression
	if f.From != nil {
		where = append(where, goqu.I(col).Gte(*f.From))
	}
	if f.To != nil {
		where = append(where, goqu.I(col).Lte(*f.To))
	}
	return where
}

// patientConditions applies every filter field to the patients table.
func patientConditions(f Filter) []exp.Expression {
	where := dateConditions(f, "created_at")
	if f.City != "" {
		where = append(where, goqu.I("city").ILike("%"+f.City+"%"))
	}
	if f.State != "" {
		where = append(where, goqu.I("state").ILike("%"+f.State+"%"))
	}
	if f.Disease != "" {
		where = append(where, goqu.Ex{"disease_diagnosis": f.Disease})
	}
	return where
}

func (r *repoPG) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	sql, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repoPG) AIStats(ctx context.Context) (*AIStats, error) {
	var s AIStats
	var avgConfidence float64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE processing_status = 'completed'),
			COUNT(*) FILTER (WHERE processing_status = 'failed'),
			COALESCE(AVG(confidence_score), 0)::float8,
			COALESCE(AVG(processing_time), 0)::float8
		FROM ai_processing_log`,
	).Scan(&s.TotalProcessed, &s.SuccessfulProcessing, &s.FailedProcessing, &avgConfidence, &s.AvgProcessingTime)
	if err != nil {
		return nil, fmt.Errorf("processing stats: %w", err)
	}
	s.AvgConfidence = int(avgConfidence + 0.5)

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE ai_extracted`,
	).Scan(&s.AIEnhancedPatients); err != nil {
		return nil, fmt.Errorf("ai enhanced patients: %w", err)
	}
	return &s, nil
}

func (r *repoPG) Diseases(ctx context.Context, f Filter) ([]DiseaseCount, error) {
	sql, args, err := dialect.From("patients").Prepared(true).
		Select(goqu.I("disease_diagnosis"), goqu.COUNT(goqu.Star()).As("count")).
		Where(append(patientConditions(f), nonBlank("disease_diagnosis"))...).
		GroupBy("disease_diagnosis").
		Order(goqu.C("count").Desc(), goqu.I("disease_diagnosis").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build diseases query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("disease counts: %w", err)
	}
	defer rows.Close()

	out := []DiseaseCount{}
	for rows.Next() {
		var d DiseaseCount
		if err := rows.Scan(&d.Disease, &d.Count); err != nil {
			return nil, fmt.Errorf("scan disease count: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repoPG) Categories(ctx context.Context, f Filter) ([]CategoryCount, error) {
	sql, args, err := dialect.From("patients").Prepared(true).
		Select(goqu.I("disease_category"), goqu.COUNT(goqu.Star()).As("count")).
		Where(append(patientConditions(f), nonBlank("disease_category"))...).
		GroupBy("disease_category").
		Order(goqu.C("count").Desc(), goqu.I("disease_category").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	out := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) DiseaseByArea(ctx context.Context, f Filter) ([]AreaDiseaseCount, error) {
	where := append(patientConditions(f),
		nonBlank("disease_diagnosis"),
		goqu.Or(nonBlank("city"), nonBlank("state")),
	)
	sql, args, err := dialect.From("patients").Prepared(true).
		Select(goqu.I("city"), goqu.I("state"), goqu.I("disease_diagnosis"), goqu.COUNT(goqu.Star()).As("count")).
		Where(where...).
		GroupBy("city", "state", "disease_diagnosis").
		Order(goqu.C("count").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build disease by area query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("disease by area: %w", err)
	}
	defer rows.Close()

	out := []AreaDiseaseCount{}
	for rows.Next() {
		var a AreaDiseaseCount
		if err := rows.Scan(&a.City, &a.State, &a.Disease, &a.Count); err != nil {
			return nil, fmt.Errorf("scan area count: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var areaExpr = goqu.L(`CASE
	WHEN COALESCE(city, '') <> '' AND COALESCE(state, '') <> '' THEN city || ', ' || state
	WHEN COALESCE(city, '') <> '' THEN city
	WHEN COALESCE(state, '') <> '' THEN state
	ELSE ? END`, UnknownArea)

func (r *repoPG) AreaDiseases(ctx context.Context, f Filter) ([]AreaCount, error) {
	sql, args, err := dialect.From("patients").Prepared(true).
		Select(areaExpr.As("area"), goqu.I("disease_diagnosis"), goqu.COUNT(goqu.Star()).As("count")).
		Where(append(patientConditions(f), nonBlank("disease_diagnosis"))...).
		GroupBy(goqu.C("area"), goqu.I("disease_diagnosis")).
		Order(goqu.C("area").Asc(), goqu.C("count").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build area diseases query: %w", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("area diseases: %w", err)
	}
	defer rows.Close()

	var out []AreaCount
	for rows.Next() {
		var a AreaCount
		if err := rows.Scan(&a.Area, &a.Disease, &a.Count); err != nil {
			return nil, fmt.Errorf("scan area disease: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) Summary(ctx context.Context, f Filter) (*Summary, error) {
	var s Summary
	var err error
	patients := dialect.From("patients")

	if s.TotalPatients, err = r.count(ctx, patients.
		Select(goqu.COUNT(goqu.Star())).
		Where(patientConditions(f)...)); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if s.TotalReports, err = r.count(ctx, dialect.From("medical_reports").
		Select(goqu.COUNT(goqu.Star())).
		Where(dateConditions(f, "uploaded_at")...)); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	if s.UniqueDiseases, err = r.count(ctx, patients.
		Select(goqu.COUNT(goqu.DISTINCT("disease_diagnosis"))).
		Where(append(patientConditions(f), nonBlank("disease_diagnosis"))...)); err != nil {
		return nil, fmt.Errorf("count diseases: %w", err)
	}
	if s.AffectedAreas, err = r.count(ctx, patients.
		Select(goqu.L(`COUNT(DISTINCT COALESCE(city, '') || ', ' || COALESCE(state, ''))`)).
		Where(append(patientConditions(f), goqu.Or(nonBlank("city"), nonBlank("state")))...)); err != nil {
		return nil, fmt.Errorf("count areas: %w", err)
	}
	return &s, nil
}

func (r *repoPG) distinct(ctx context.Context, col string) ([]string, error) {
	sql, args, err := dialect.From("patients").Prepared(true).
		SelectDistinct(goqu.I(col)).
		Where(nonBlank(col)).
		Order(goqu.I(col).Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build distinct %s query: %w", col, err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", col, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", col, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	var opts FilterOptions
	var err error
	if opts.Diseases, err = r.distinct(ctx, "disease_diagnosis"); err != nil {
		return nil, err
	}
	if opts.Cities, err = r.distinct(ctx, "city"); err != nil {
		return nil, err
	}
	if opts.States, err = r.distinct(ctx, "state"); err != nil {
		return nil, err
	}
	return &opts, nil
}
