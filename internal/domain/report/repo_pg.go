package report

import (
	"context"
	"encoding/json"
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

const reportSelect = `
	SELECT r.id, r.patient_id, r.report_title, r.report_description, r.file_name, r.blob_id,
		r.file_type, r.file_size, r.file_hash, r.uploaded_by, r.uploaded_at,
		l.processing_status, l.confidence_score, l.processed_at
	FROM medical_reports r
	LEFT JOIN LATERAL (
		SELECT processing_status, confidence_score, processed_at
		FROM ai_processing_log
		WHERE report_id = r.id
		ORDER BY processed_at DESC
		LIMIT 1
	) l ON TRUE`

func (r *repoPG) CreateReport(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_reports (
			id, patient_id, report_title, report_description, file_name, blob_id,
			file_type, file_size, file_hash, uploaded_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING uploaded_at`,
		rep.ID, rep.PatientID, rep.Title, rep.Description, rep.FileName, rep.BlobID,
		rep.FileType, rep.FileSize, rep.FileHash, rep.UploadedBy,
	).Scan(&rep.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *repoPG) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, reportSelect+` WHERE r.id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_reports WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		reportSelect+` WHERE r.patient_id = $1 ORDER BY r.uploaded_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*Report, 0, limit)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, total, nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(
		&rep.ID, &rep.PatientID, &rep.Title, &rep.Description, &rep.FileName, &rep.BlobID,
		&rep.FileType, &rep.FileSize, &rep.FileHash, &rep.UploadedBy, &rep.UploadedAt,
		&rep.Status, &rep.Confidence, &rep.AIProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return &rep, nil
}

func (r *repoPG) CreateLog(ctx context.Context, l *ProcessingLog) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ai_processing_log (id, report_id, file_name, processing_status)
		VALUES ($1, $2, $3, $4)
		RETURNING processed_at`,
		l.ID, l.ReportID, l.FileName, l.Status,
	).Scan(&l.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

func (r *repoPG) UpdateLog(ctx context.Context, id uuid.UUID, u LogUpdate) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE ai_processing_log SET
			processing_status = $2,
			patient_id = COALESCE($3, patient_id),
			extracted_text = COALESCE($4, extracted_text),
			confidence_score = COALESCE($5, confidence_score),
			processing_time = $6,
			error_message = $7,
			processed_at = NOW()
		WHERE id = $1`,
		id, u.Status, u.PatientID, u.ExtractedText, u.Confidence, u.ProcessingTime, u.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update processing log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) LatestLog(ctx context.Context, reportID uuid.UUID) (*ProcessingLog, error) {
	var l ProcessingLog
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, report_id, patient_id, file_name, processing_status, extracted_text,
			confidence_score, processing_time, error_message, processed_at
		FROM ai_processing_log
		WHERE report_id = $1
		ORDER BY processed_at DESC
		LIMIT 1`, reportID,
	).Scan(
		&l.ID, &l.ReportID, &l.PatientID, &l.FileName, &l.Status, &l.ExtractedText,
		&l.Confidence, &l.ProcessingTime, &l.ErrorMessage, &l.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processing log: %w", err)
	}
	return &l, nil
}

func (r *repoPG) InsertRecord(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	symptoms := rec.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	symptomsJSON, err := json.Marshal(symptoms)
	if err != nil {
		return fmt.Errorf("encode symptoms: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (
			id, patient_id, report_id, diagnosis, disease_category, symptoms,
			allergies, visit_date, appointment_date, confidence_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.ReportID, rec.Diagnosis, rec.DiseaseCategory, string(symptomsJSON),
		rec.Allergies, rec.VisitDate, rec.AppointmentDate, rec.Confidence,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *repoPG) InsertVitals(ctx context.Context, rec *MedicalRecord, v VitalSigns) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vital_signs (
			patient_id, record_id, blood_pressure, heart_rate, temperature,
			respiratory_rate, oxygen_saturation
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.PatientID, rec.ID, v.BloodPressure, v.HeartRate, v.Temperature,
		v.RespiratoryRate, v.OxygenSaturation,
	)
	if err != nil {
		return fmt.Errorf("insert vital signs: %w", err)
	}
	return nil
}

func (r *repoPG) InsertMedications(ctx context.Context, rec *MedicalRecord, meds []Medication) error {
	if len(meds) == 0 {
		return nil
	}
	rows := make([]interface{}, 0, len(meds))
	for _, m := range meds {
		rows = append(rows, goqu.Record{
			"patient_id":      rec.PatientID,
			"record_id":       rec.ID.String(),
			"medication_name": m.Name,
			"dosage":          m.Dosage,
		})
	}
	sql, args, err := dialect.Insert("medications").Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return fmt.Errorf("build medications insert: %w", err)
	}
	if _, err := r.conn(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert medications: %w", err)
	}
	return nil
}

func (r *repoPG) InsertLabResults(ctx context.Context, rec *MedicalRecord, labs []LabResult) error {
	if len(labs) == 0 {
		return nil
	}
	rows := make([]interface{}, 0, len(labs))
	for _, l := range labs {
		rows = append(rows, goqu.Record{
			"patient_id": rec.PatientID,
			"record_id":  rec.ID.String(),
			"test_name":  l.TestName,
			"test_value": l.Value,
			"raw_value":  l.RawValue,
			"unit":       l.Unit,
		})
	}
	sql, args, err := dialect.Insert("lab_results").Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return fmt.Errorf("build lab results insert: %w", err)
	}
	if _, err := r.conn(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lab results: %w", err)
	}
	return nil
}

// GetMedicalData loads the newest medical record of a report with its vitals,
// medications and labs. It returns ErrNotFound when nothing was persisted.
func (r *repoPG) GetMedicalData(ctx context.Context, reportID uuid.UUID) (*MedicalData, error) {
	q := r.conn(ctx)

	var rec MedicalRecord
	var symptoms []byte
	err := q.QueryRow(ctx, `
		SELECT id, patient_id, report_id, diagnosis, disease_category, symptoms,
			allergies, visit_date, appointment_date, confidence_score, created_at
		FROM medical_records
		WHERE report_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, reportID,
	).Scan(
		&rec.ID, &rec.PatientID, &rec.ReportID, &rec.Diagnosis, &rec.DiseaseCategory, &symptoms,
		&rec.Allergies, &rec.VisitDate, &rec.AppointmentDate, &rec.Confidence, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medical record: %w", err)
	}
	rec.Symptoms = []string{}
	if len(symptoms) > 0 {
		if err := json.Unmarshal(symptoms, &rec.Symptoms); err != nil {
			return nil, fmt.Errorf("decode symptoms: %w", err)
		}
	}

	data := &MedicalData{Record: &rec, Medications: []Medication{}, LabResults: []LabResult{}}

	var v VitalSigns
	err = q.QueryRow(ctx, `
		SELECT blood_pressure, heart_rate, temperature, respiratory_rate, oxygen_saturation
		FROM vital_signs WHERE record_id = $1 LIMIT 1`, rec.ID,
	).Scan(&v.BloodPressure, &v.HeartRate, &v.Temperature, &v.RespiratoryRate, &v.OxygenSaturation)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("get vital signs: %w", err)
	default:
		data.VitalSigns = &v
	}

	medRows, err := q.Query(ctx, `
		SELECT medication_name, dosage FROM medications
		WHERE record_id = $1 ORDER BY created_at, medication_name`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	for medRows.Next() {
		var m Medication
		if err := medRows.Scan(&m.Name, &m.Dosage); err != nil {
			medRows.Close()
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		data.Medications = append(data.Medications, m)
	}
	medRows.Close()
	if err := medRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medications: %w", err)
	}

	labRows, err := q.Query(ctx, `
		SELECT test_name, test_value, raw_value, unit FROM lab_results
		WHERE record_id = $1 ORDER BY test_name`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	defer labRows.Close()
	for labRows.Next() {
		var l LabResult
		var raw *string
		if err := labRows.Scan(&l.TestName, &l.Value, &raw, &l.Unit); err != nil {
			return nil, fmt.Errorf("scan lab result: %w", err)
		}
		if raw != nil {
			l.RawValue = *raw
		}
		data.LabResults = append(data.LabResults, l)
	}
	if err := labRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab results: %w", err)
	}
	return data, nil
}
