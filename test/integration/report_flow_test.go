//go:build integration

package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medreports/medreports/internal/domain/dashboard"
	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/domain/report"
	"github.com/medreports/medreports/internal/extraction"
	"github.com/medreports/medreports/internal/platform/blobstore"
	"github.com/medreports/medreports/internal/platform/decode"
	"github.com/medreports/medreports/internal/platform/worker"
)

// collectQueue keeps submitted jobs until the test runs them.
type collectQueue struct {
	jobs []worker.Job
}

func (q *collectQueue) Submit(job worker.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

func (q *collectQueue) run(t *testing.T, ctx context.Context) {
	t.Helper()
	for _, j := range q.jobs {
		if err := j.Execute(ctx); err != nil {
			t.Fatalf("job %s: %v", j.Name, err)
		}
	}
	q.jobs = nil
}

func TestReportFlow(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	logger := zerolog.Nop()
	patients := patient.NewRepo(globalDB.Pool)
	decoder := decode.New(nil, logger)
	pipeline := extraction.NewPipeline(extraction.NewEngine(logger, extraction.Options{}), decoder, logger)
	queue := &collectQueue{}
	svc := report.NewService(report.NewRepo(globalDB.Pool), patients, blobstore.NewInMemoryBlobStore(),
		pipeline, decoder, queue, report.PGTxRunner(globalDB.Pool), report.Config{}, logger)

	owner := &patient.Patient{PatientID: "MRN-OWNER", FirstName: "Olive", LastName: "Owner", City: ptrStr("Austin"), State: ptrStr("TX")}
	if err := patients.Create(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}

	text := "Patient Name: Jane Doe\nDiagnosis: Diabetes\nBP: 130/85\nGlucose: 150"
	rep, err := svc.Upload(ctx, owner.ID, report.UploadInput{
		Title:      "Visit note",
		FileName:   "visit.txt",
		Content:    strings.NewReader(text),
		UploadedBy: "staff-1",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	status, err := svc.AIStatus(ctx, rep.ID)
	if err != nil {
		t.Fatalf("ai status: %v", err)
	}
	if status.Status != report.StatusProcessing {
		t.Errorf("expected processing before the job runs, got %s", status.Status)
	}

	queue.run(t, ctx)

	status, err = svc.AIStatus(ctx, rep.ID)
	if err != nil {
		t.Fatalf("ai status: %v", err)
	}
	if status.Status != report.StatusCompleted {
		t.Fatalf("expected completed, got %s (error %v)", status.Status, status.Error)
	}

	data, err := svc.MedicalData(ctx, rep.ID)
	if err != nil || data == nil {
		t.Fatalf("medical data: %v %v", data, err)
	}
	if data.Record.Diagnosis == nil || *data.Record.Diagnosis != "Diabetes" {
		t.Errorf("unexpected diagnosis: %v", data.Record.Diagnosis)
	}
	if data.Record.DiseaseCategory == nil || *data.Record.DiseaseCategory != "diabetes" {
		t.Errorf("unexpected category: %v", data.Record.DiseaseCategory)
	}
	if data.VitalSigns == nil || data.VitalSigns.BloodPressure == nil || *data.VitalSigns.BloodPressure != "130/85" {
		t.Errorf("unexpected vitals: %+v", data.VitalSigns)
	}
	var glucose *report.LabResult
	for i := range data.LabResults {
		if data.LabResults[i].TestName == "glucose" {
			glucose = &data.LabResults[i]
		}
	}
	if glucose == nil || glucose.Value == nil || *glucose.Value != 150 {
		t.Fatalf("expected glucose 150, got %+v", data.LabResults)
	}
	if glucose.Unit == nil || *glucose.Unit != "mg/dL" {
		t.Errorf("expected mg/dL unit, got %v", glucose.Unit)
	}

	// The extracted patient is stored under a generated identifier.
	found, total, err := patients.Search(ctx, patient.SearchParams{Name: "Jane"}, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || !strings.HasPrefix(found[0].PatientID, "PAT_") {
		t.Errorf("expected one generated patient, got %d", total)
	}

	extracted, err := svc.Text(ctx, rep.ID)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if extracted.Source != "processing_log" || !strings.Contains(extracted.Text, "Jane Doe") {
		t.Errorf("unexpected extracted text: %+v", extracted)
	}

	dash := dashboard.NewService(dashboard.NewRepo(globalDB.Pool))
	stats, err := dash.AIStats(ctx)
	if err != nil {
		t.Fatalf("ai stats: %v", err)
	}
	if stats.TotalProcessed != 1 || stats.SuccessfulProcessing != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	summary, err := dash.Summary(ctx, dashboard.Filter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalPatients != 2 || summary.TotalReports != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestReportFlow_UnreadablePDFFails(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	logger := zerolog.Nop()
	patients := patient.NewRepo(globalDB.Pool)
	decoder := decode.New(nil, logger)
	pipeline := extraction.NewPipeline(extraction.NewEngine(logger, extraction.Options{}), decoder, logger)
	queue := &collectQueue{}
	svc := report.NewService(report.NewRepo(globalDB.Pool), patients, blobstore.NewInMemoryBlobStore(),
		pipeline, decoder, queue, report.PGTxRunner(globalDB.Pool), report.Config{}, logger)

	owner := &patient.Patient{PatientID: "MRN-PDF", FirstName: "Paula", LastName: "Pdf"}
	if err := patients.Create(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	rep, err := svc.Upload(ctx, owner.ID, report.UploadInput{
		FileName: "scan.pdf",
		Content:  strings.NewReader("%PDF-1.4 truncated"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	for _, j := range queue.jobs {
		if err := j.Execute(ctx); err == nil {
			t.Error("expected processing error")
		}
	}

	status, err := svc.AIStatus(ctx, rep.ID)
	if err != nil {
		t.Fatalf("ai status: %v", err)
	}
	if status.Status != report.StatusFailed || status.Error == nil {
		t.Errorf("expected failed status with error, got %+v", status)
	}
	if data, err := svc.MedicalData(ctx, rep.ID); err != nil || data != nil {
		t.Errorf("expected no medical data, got %v %v", data, err)
	}
}
