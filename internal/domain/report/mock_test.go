package report

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/extraction"
	"github.com/medreports/medreports/internal/platform/worker"
)

type memReports struct {
	mu       sync.Mutex
	reports  map[uuid.UUID]*Report
	logs     map[uuid.UUID]*ProcessingLog
	records  []*MedicalRecord
	vitals   map[uuid.UUID]VitalSigns
	meds     map[uuid.UUID][]Medication
	labs     map[uuid.UUID][]LabResult
	failNext error
}

func newMemReports() *memReports {
	return &memReports{
		reports: make(map[uuid.UUID]*Report),
		logs:    make(map[uuid.UUID]*ProcessingLog),
		vitals:  make(map[uuid.UUID]VitalSigns),
		meds:    make(map[uuid.UUID][]Medication),
		labs:    make(map[uuid.UUID][]LabResult),
	}
}

func (m *memReports) CreateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.UploadedAt = time.Now()
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memReports) GetReport(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReports) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for _, r := range m.reports {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memReports) CreateLog(_ context.Context, l *ProcessingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.ProcessedAt = time.Now()
	cp := *l
	m.logs[l.ID] = &cp
	return nil
}

func (m *memReports) UpdateLog(_ context.Context, id uuid.UUID, u LogUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = u.Status
	if u.PatientID != nil {
		l.PatientID = u.PatientID
	}
	if u.ExtractedText != nil {
		l.ExtractedText = u.ExtractedText
	}
	if u.Confidence != nil {
		l.Confidence = u.Confidence
	}
	pt := u.ProcessingTime
	l.ProcessingTime = &pt
	l.ErrorMessage = u.ErrorMessage
	return nil
}

func (m *memReports) LatestLog(_ context.Context, reportID uuid.UUID) (*ProcessingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *ProcessingLog
	for _, l := range m.logs {
		if l.ReportID == reportID && (latest == nil || l.ProcessedAt.After(latest.ProcessedAt)) {
			latest = l
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memReports) logFor(reportID uuid.UUID) *ProcessingLog {
	l, _ := m.LatestLog(context.Background(), reportID)
	return l
}

func (m *memReports) InsertRecord(_ context.Context, rec *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	rec.ID = uuid.New()
	m.records = append(m.records, rec)
	return nil
}

func (m *memReports) InsertVitals(_ context.Context, rec *MedicalRecord, v VitalSigns) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vitals[rec.ID] = v
	return nil
}

func (m *memReports) InsertMedications(_ context.Context, rec *MedicalRecord, meds []Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meds[rec.ID] = append(m.meds[rec.ID], meds...)
	return nil
}

func (m *memReports) InsertLabResults(_ context.Context, rec *MedicalRecord, labs []LabResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labs[rec.ID] = append(m.labs[rec.ID], labs...)
	return nil
}

func (m *memReports) GetMedicalData(_ context.Context, reportID uuid.UUID) (*MedicalData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if rec.ReportID != reportID {
			continue
		}
		data := &MedicalData{Record: rec, Medications: m.meds[rec.ID], LabResults: m.labs[rec.ID]}
		if v, ok := m.vitals[rec.ID]; ok {
			data.VitalSigns = &v
		}
		return data, nil
	}
	return nil, ErrNotFound
}

type memPatients struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*patient.Patient
	upserts  []patient.Demographics
	updates  map[uuid.UUID]patient.AIUpdate
}

func newMemPatients() *memPatients {
	return &memPatients{
		patients: make(map[uuid.UUID]*patient.Patient),
		updates:  make(map[uuid.UUID]patient.AIUpdate),
	}
}

func (m *memPatients) add(first, last string) *patient.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &patient.Patient{ID: uuid.New(), PatientID: "MRN-" + first, FirstName: first, LastName: last}
	m.patients[p.ID] = p
	return p
}

func (m *memPatients) Create(_ context.Context, p *patient.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return nil
}

func (m *memPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

func (m *memPatients) GetByPatientID(_ context.Context, patientID string) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.PatientID == patientID {
			return p, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (m *memPatients) Update(_ context.Context, p *patient.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

func (m *memPatients) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
	return nil
}

func (m *memPatients) List(ctx context.Context, limit, offset int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (m *memPatients) Search(ctx context.Context, _ patient.SearchParams, limit, offset int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (m *memPatients) UpsertDemographics(_ context.Context, d patient.Demographics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, d)
	return nil
}

func (m *memPatients) ApplyAIUpdate(_ context.Context, id uuid.UUID, u patient.AIUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return patient.ErrNotFound
	}
	m.updates[id] = u
	return nil
}

type stubProcessor struct {
	res      *extraction.Result
	gotName  string
	gotBytes []byte
}

func (s *stubProcessor) ProcessFile(_ context.Context, r io.Reader, fileName string) *extraction.Result {
	s.gotName = fileName
	s.gotBytes, _ = io.ReadAll(r)
	return s.res
}

type stubDecoder struct {
	text  string
	err   error
	calls int
}

func (s *stubDecoder) Decode(_ context.Context, r io.Reader, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.text != "" {
		return s.text, nil
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

// syncQueue holds submitted jobs so tests can run them deterministically.
type syncQueue struct {
	jobs []worker.Job
	full bool
}

func (q *syncQueue) Submit(job worker.Job) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

func (q *syncQueue) drain(ctx context.Context) error {
	jobs := q.jobs
	q.jobs = nil
	for _, j := range jobs {
		if err := j.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

func inline(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func sampleResult(confidence int) *extraction.Result {
	processed := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return &extraction.Result{
		Success:       true,
		ExtractedText: "Patient Name: Jane Doe\nDiagnosis: Hypertension",
		Confidence:    confidence,
		ProcessedAt:   &processed,
		MedicalInfo: &extraction.MedicalInfo{
			DiseaseCategory: "cardiovascular",
			StructuredData: extraction.StructuredRecord{
				Patient: extraction.PatientRecord{
					Name:        extraction.Some("Jane Doe"),
					PatientID:   extraction.Some("MRN-42"),
					DateOfBirth: extraction.Some("03/15/1980"),
					Age:         extraction.Some("44"),
					Phone:       extraction.Some("555-0100"),
					City:        extraction.Some("Austin"),
				},
				Medical: extraction.ClinicalRecord{
					Diagnosis:       extraction.Some("Hypertension"),
					DiseaseCategory: extraction.Some("cardiovascular"),
					Symptoms:        []string{"headache"},
					Medications: []extraction.Medication{
						{Name: "Lisinopril", Dosage: extraction.Some("10mg")},
					},
					VitalSigns: extraction.VitalSigns{
						extraction.FieldBloodPressure: "150/95",
						extraction.FieldPulse:         "88",
						extraction.FieldTemperature:   "98.6",
					},
					LabResults: extraction.LabResults{
						extraction.FieldGlucose:     extraction.NumericLab(110),
						extraction.FieldCholesterol: extraction.RawLab("high"),
					},
				},
				Visit: extraction.VisitRecord{VisitDate: extraction.Some("2024-01-10")},
			},
		},
	}
}
