package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/extraction"
	"github.com/medreports/medreports/internal/platform/blobstore"
	"github.com/medreports/medreports/internal/platform/decode"
)

type fixture struct {
	svc       *Service
	reports   *memReports
	patients  *memPatients
	blobs     *blobstore.InMemoryBlobStore
	processor *stubProcessor
	decoder   *stubDecoder
	queue     *syncQueue
}

func newFixture(res *extraction.Result) *fixture {
	f := &fixture{
		reports:   newMemReports(),
		patients:  newMemPatients(),
		blobs:     blobstore.NewInMemoryBlobStore(),
		processor: &stubProcessor{res: res},
		decoder:   &stubDecoder{},
		queue:     &syncQueue{},
	}
	f.svc = NewService(f.reports, f.patients, f.blobs, f.processor, f.decoder, f.queue, inline, Config{}, zerolog.Nop())
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f
}

func (f *fixture) upload(t *testing.T, owner uuid.UUID, name, body string) *Report {
	t.Helper()
	rep, err := f.svc.Upload(context.Background(), owner, UploadInput{
		Title:      "Annual checkup",
		FileName:   name,
		Content:    strings.NewReader(body),
		UploadedBy: "staff-1",
	})
	require.NoError(t, err)
	return rep
}

func TestUpload_QueuesProcessing(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")

	rep := f.upload(t, owner.ID, "visit.txt", "Patient Name: Jane Doe")

	assert.NotEqual(t, uuid.Nil, rep.ID)
	assert.Equal(t, owner.ID, rep.PatientID)
	require.NotNil(t, rep.Status)
	assert.Equal(t, StatusProcessing, *rep.Status)
	assert.Len(t, f.queue.jobs, 1)

	l := f.reports.logFor(rep.ID)
	require.NotNil(t, l)
	assert.Equal(t, StatusProcessing, l.Status)

	meta, err := f.blobs.GetMetadata(context.Background(), rep.BlobID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID.String(), meta.PatientID)
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")

	_, err := f.svc.Upload(context.Background(), owner.ID, UploadInput{FileName: "notes.docx", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.svc.Upload(context.Background(), uuid.New(), UploadInput{FileName: "notes.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, patient.ErrNotFound)

	assert.Empty(t, f.queue.jobs)
}

func TestUpload_QueueFull(t *testing.T) {
	f := newFixture(sampleResult(85))
	f.queue.full = true
	owner := f.patients.add("Jane", "Doe")

	rep, err := f.svc.Upload(context.Background(), owner.ID, UploadInput{FileName: "a.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrQueueFull)
	require.NotNil(t, rep)

	l := f.reports.logFor(rep.ID)
	require.NotNil(t, l)
	assert.Equal(t, StatusFailed, l.Status)
	require.NotNil(t, l.ErrorMessage)
	assert.Equal(t, ErrQueueFull.Error(), *l.ErrorMessage)
}

func TestProcess_PersistsExtraction(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "Patient Name: Jane Doe")

	require.NoError(t, f.queue.drain(context.Background()))

	assert.Equal(t, "visit.txt", f.processor.gotName)
	assert.Equal(t, "Patient Name: Jane Doe", string(f.processor.gotBytes))

	require.Len(t, f.patients.upserts, 1)
	d := f.patients.upserts[0]
	assert.Equal(t, "MRN-42", d.PatientID)
	assert.Equal(t, "Jane", d.FirstName)
	assert.Equal(t, "Doe", d.LastName)
	require.NotNil(t, d.DateOfBirth)
	assert.Equal(t, "1980-03-15", d.DateOfBirth.Format("2006-01-02"))
	require.NotNil(t, d.Age)
	assert.Equal(t, 44, *d.Age)

	data, err := f.svc.MedicalData(context.Background(), rep.ID)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "MRN-42", data.Record.PatientID)
	assert.Equal(t, []string{"headache"}, data.Record.Symptoms)
	require.NotNil(t, data.Record.VisitDate)
	assert.Equal(t, "2024-01-10", data.Record.VisitDate.Format("2006-01-02"))

	require.NotNil(t, data.VitalSigns)
	assert.Equal(t, 88, *data.VitalSigns.HeartRate)
	assert.InDelta(t, 98.6, *data.VitalSigns.Temperature, 0.001)
	assert.Nil(t, data.VitalSigns.RespiratoryRate)

	require.Len(t, data.Medications, 1)
	assert.Equal(t, "Lisinopril", data.Medications[0].Name)

	require.Len(t, data.LabResults, 2)
	assert.Equal(t, "cholesterol", data.LabResults[0].TestName)
	assert.Nil(t, data.LabResults[0].Value)
	assert.Equal(t, "high", data.LabResults[0].RawValue)
	assert.Equal(t, "glucose", data.LabResults[1].TestName)
	assert.InDelta(t, 110, *data.LabResults[1].Value, 0.001)
	assert.Equal(t, "mg/dL", *data.LabResults[1].Unit)

	status, err := f.svc.AIStatus(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 85, *status.Confidence)

	u, ok := f.patients.updates[owner.ID]
	require.True(t, ok, "expected owner update at confidence 85")
	assert.Equal(t, "Hypertension", *u.Diagnosis)
	assert.Equal(t, "cardiovascular", *u.Category)
	assert.Equal(t, 85, u.Confidence)
}

func TestProcess_LowConfidenceLeavesOwner(t *testing.T) {
	f := newFixture(sampleResult(40))
	owner := f.patients.add("Jane", "Doe")
	f.upload(t, owner.ID, "visit.txt", "x")

	require.NoError(t, f.queue.drain(context.Background()))
	assert.Empty(t, f.patients.updates)
	assert.Len(t, f.patients.upserts, 1)
}

func TestProcess_GeneratedIdentifierWithoutName(t *testing.T) {
	res := sampleResult(30)
	res.MedicalInfo.StructuredData.Patient = extraction.PatientRecord{}
	f := newFixture(res)
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "x")

	require.NoError(t, f.queue.drain(context.Background()))

	assert.Empty(t, f.patients.upserts, "no upsert without an extracted name")
	data, err := f.svc.MedicalData(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAT_1700000000000", data.Record.PatientID)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	f := newFixture(extraction.Failure(errors.New("unsupported file type: .xyz")))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "x")

	err := f.queue.drain(context.Background())
	require.Error(t, err)

	status, err := f.svc.AIStatus(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "unsupported file type: .xyz", *status.Error)

	data, err := f.svc.MedicalData(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestProcess_PersistFailureMarksLogFailed(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "x")
	f.reports.failNext = errors.New("disk full")

	err := f.queue.drain(context.Background())
	require.Error(t, err)

	l := f.reports.logFor(rep.ID)
	assert.Equal(t, StatusFailed, l.Status)
	assert.Contains(t, *l.ErrorMessage, "disk full")
}

func TestAIStatus_NotProcessed(t *testing.T) {
	f := newFixture(sampleResult(85))
	rep := &Report{PatientID: uuid.New(), FileName: "a.txt"}
	require.NoError(t, f.reports.CreateReport(context.Background(), rep))

	status, err := f.svc.AIStatus(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotProcessed, status.Status)

	_, err = f.svc.AIStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestText_PrefersStoredExtraction(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "raw file body")

	text, err := f.svc.Text(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "decoder", text.Source)
	assert.Equal(t, "raw file body", text.Text)

	require.NoError(t, f.queue.drain(context.Background()))
	text, err = f.svc.Text(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing_log", text.Source)
	assert.Equal(t, sampleResult(85).ExtractedText, text.Text)
}

func TestText_DecodeError(t *testing.T) {
	f := newFixture(sampleResult(85))
	f.decoder.err = &decode.DecodeError{Ext: ".pdf", Err: errors.New("encrypted")}
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "scan.pdf", "%PDF-1.4")

	_, err := f.svc.Text(context.Background(), rep.ID)
	var decodeErr *decode.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestOpen(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "file contents")

	rc, got, meta, err := f.svc.Open(context.Background(), rep.ID)
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, "file contents", buf.String())
	assert.Equal(t, "visit.txt", got.FileName)
	assert.Equal(t, int64(len("file contents")), meta.Size)
}

func TestListReports_UnknownPatient(t *testing.T) {
	f := newFixture(sampleResult(85))
	_, _, err := f.svc.ListReports(context.Background(), uuid.New(), 10, 0)
	assert.ErrorIs(t, err, patient.ErrNotFound)
}
