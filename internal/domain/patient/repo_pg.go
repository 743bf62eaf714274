package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medreports/medreports/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

type repoPG struct {
	db db.Querier
}

func NewRepo(q db.Querier) Repository {
	return &repoPG{db: q}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.db)
}

const patientCols = `id, patient_id, first_name, last_name, date_of_birth, gender, age,
	phone, email, address, city, state, disease_diagnosis, disease_category,
	ai_extracted, ai_confidence, created_by, created_at, updated_at`

var patientColumns = []interface{}{
	"id", "patient_id", "first_name", "last_name", "date_of_birth", "gender", "age",
	"phone", "email", "address", "city", "state", "disease_diagnosis", "disease_category",
	"ai_extracted", "ai_confidence", "created_by", "created_at", "updated_at",
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			id, patient_id, first_name, last_name, date_of_birth, gender, age,
			phone, email, address, city, state, disease_diagnosis, disease_category, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Age,
		p.Phone, p.Email, p.Address, p.City, p.State, p.DiseaseDiagnosis, p.DiseaseCategory, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, patientID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			patient_id=$2, first_name=$3, last_name=$4, date_of_birth=$5, gender=$6, age=$7,
			phone=$8, email=$9, address=$10, city=$11, state=$12,
			disease_diagnosis=$13, disease_category=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING ai_extracted, ai_confidence, created_by, created_at, updated_at`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Age,
		p.Phone, p.Email, p.Address, p.City, p.State,
		p.DiseaseDiagnosis, p.DiseaseCategory,
	).Scan(&p.AIExtracted, &p.AIConfidence, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, SearchParams{}, limit, offset)
}

// Search filters by any combination of name, identifier, area, diagnosis and
// creation window, newest first.
func (r *repoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	where := searchConditions(params)

	countSQL, countArgs, err := dialect.From("patients").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).Where(where...).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	listSQL, listArgs, err := dialect.From("patients").Prepared(true).
		Select(patientColumns...).Where(where...).
		Order(goqu.I("created_at").Desc()).
		Limit(uint(limit)).Offset(uint(offset)).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build search query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	patients := make([]*Patient, 0, limit)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, total, nil
}

func searchConditions(params SearchParams) []goqu.Expression {
	var where []goqu.Expression
	if params.Name != "" {
		like := "%" + params.Name + "%"
		where = append(where, goqu.Or(
			goqu.I("first_name").ILike(like),
			goqu.I("last_name").ILike(like),
			goqu.L("first_name || ' ' || last_name").ILike(like),
		))
	}
	if params.PatientID != "" {
		where = append(where, goqu.Ex{"patient_id": params.PatientID})
	}
	if params.City != "" {
		where = append(where, goqu.I("city").ILike("%"+params.City+"%"))
	}
	if params.State != "" {
		where = append(where, goqu.I("state").ILike("%"+params.State+"%"))
	}
	if params.Disease != "" {
		where = append(where, goqu.Ex{"disease_diagnosis": params.Disease})
	}
	if params.Category != "" {
		where = append(where, goqu.Ex{"disease_category": params.Category})
	}
	if params.From != nil {
		where = append(where, goqu.I("created_at").Gte(*params.From))
	}
	if params.To != nil {
		where = append(where, goqu.I("created_at").Lte(*params.To))
	}
	return where
}

func (r *repoPG) UpsertDemographics(ctx context.Context, d Demographics) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			patient_id, first_name, last_name, date_of_birth, gender, age,
			phone, email, address, city, state, ai_extracted
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,TRUE)
		ON CONFLICT (patient_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			date_of_birth = COALESCE(EXCLUDED.date_of_birth, patients.date_of_birth),
			gender = COALESCE(EXCLUDED.gender, patients.gender),
			age = COALESCE(EXCLUDED.age, patients.age),
			phone = COALESCE(EXCLUDED.phone, patients.phone),
			email = COALESCE(EXCLUDED.email, patients.email),
			address = COALESCE(EXCLUDED.address, patients.address),
			city = COALESCE(EXCLUDED.city, patients.city),
			state = COALESCE(EXCLUDED.state, patients.state),
			updated_at = NOW()`,
		d.PatientID, d.FirstName, d.LastName, d.DateOfBirth, d.Gender, d.Age,
		d.Phone, d.Email, d.Address, d.City, d.State,
	)
	if err != nil {
		return fmt.Errorf("upsert patient %s: %w", d.PatientID, err)
	}
	return nil
}

func (r *repoPG) ApplyAIUpdate(ctx context.Context, id uuid.UUID, u AIUpdate) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			phone = COALESCE($2, phone),
			email = COALESCE($3, email),
			address = COALESCE($4, address),
			city = COALESCE($5, city),
			state = COALESCE($6, state),
			disease_diagnosis = COALESCE($7, disease_diagnosis),
			disease_category = COALESCE($8, disease_category),
			ai_extracted = TRUE,
			ai_confidence = $9,
			updated_at = NOW()
		WHERE id = $1`,
		id, u.Phone, u.Email, u.Address, u.City, u.State, u.Diagnosis, u.Category, u.Confidence,
	)
	if err != nil {
		return fmt.Errorf("apply ai update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.Age,
		&p.Phone, &p.Email, &p.Address, &p.City, &p.State, &p.DiseaseDiagnosis, &p.DiseaseCategory,
		&p.AIExtracted, &p.AIConfidence, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}
