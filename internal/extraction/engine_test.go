package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(opts Options) *Engine {
	e := NewEngine(zerolog.Nop(), opts)
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return e
}

func TestEngine_EndToEnd(t *testing.T) {
	e := newTestEngine(Options{})
	res := e.Process("Patient Name: Jane Doe\nDiagnosis: Diabetes\nBP: 130/85\nGlucose: 150", "note.txt")

	require.True(t, res.Success)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.ProcessedAt)

	sd := res.MedicalInfo.StructuredData
	assert.Equal(t, "Jane Doe", sd.Patient.Name.OrElse(""))
	assert.Equal(t, "Diabetes", sd.Medical.Diagnosis.OrElse(""))
	assert.Equal(t, "diabetes", sd.Medical.DiseaseCategory.OrElse(""))
	assert.Equal(t, "130/85", res.MedicalInfo.VitalSigns[FieldBloodPressure])

	glucose, ok := res.MedicalInfo.LabResults[FieldGlucose].Float()
	require.True(t, ok)
	assert.Equal(t, 150.0, glucose)
	assert.Greater(t, res.Confidence, 0)
	assert.Equal(t, 43, res.Confidence)
}

func TestEngine_EmptyInput(t *testing.T) {
	res := newTestEngine(Options{}).Process("", "empty.txt")

	require.True(t, res.Success)
	assert.Equal(t, 0, res.Confidence)
	assert.Equal(t, "", res.ExtractedText)
	assert.Equal(t, GeneralCategory, res.MedicalInfo.DiseaseCategory)
	assert.Empty(t, res.MedicalInfo.Fields)
	assert.Empty(t, res.MedicalInfo.Medications)

	sd := res.MedicalInfo.StructuredData
	assert.False(t, sd.Patient.Name.Valid())
	assert.False(t, sd.Patient.Email.Valid())
	assert.False(t, sd.Medical.Diagnosis.Valid())
	assert.False(t, sd.Medical.Allergies.Valid())
	assert.False(t, sd.Visit.AppointmentDate.Valid())
}

func TestEngine_ConfidenceTwoOfSeven(t *testing.T) {
	res := newTestEngine(Options{}).Process("Patient Name: John Smith\nDiagnosis: Influenza", "t")
	require.True(t, res.Success)
	assert.Equal(t, 29, res.Confidence)
}

func TestEngine_TemperatureTakesFirst(t *testing.T) {
	res := newTestEngine(Options{}).Process("Temp: 98.6 on arrival.\nLater Temperature: 99.1", "t")
	assert.Equal(t, "98.6", res.MedicalInfo.VitalSigns[FieldTemperature])
}

func TestEngine_BloodPressureDeduplicated(t *testing.T) {
	res := newTestEngine(Options{}).Process("BP: 120/80\nRecheck BP: 120/80", "t")
	assert.Equal(t, []string{"120/80"}, res.MedicalInfo.Fields.Get(FieldBloodPressure))
}

func TestEngine_MedicationDuplication(t *testing.T) {
	res := newTestEngine(Options{}).Process("Amoxicillin 500mg daily", "t")
	assert.Len(t, res.MedicalInfo.Medications, 2)
	assert.Len(t, res.MedicalInfo.StructuredData.Medical.Medications, 2)

	deduped := newTestEngine(Options{DedupeMedications: true}).Process("Amoxicillin 500mg daily", "t")
	assert.Len(t, deduped.MedicalInfo.Medications, 1)
}

func TestEngine_TruncatesExtractedText(t *testing.T) {
	text := "Diagnosis: asthma\n" + strings.Repeat("x", 6000)
	res := newTestEngine(Options{}).Process(text, "long.txt")
	assert.Len(t, res.ExtractedText, DefaultMaxTextLength)
	assert.Equal(t, []string{"asthma"}, res.MedicalInfo.Fields.Get(FieldDiagnosis))

	short := newTestEngine(Options{MaxTextLength: 10}).Process(text, "long.txt")
	assert.Equal(t, "Diagnosis:", short.ExtractedText)
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(Options{})
	text := "Patient Name: Ann Lee\nSymptoms: cough\nHb: 12.1\nAmoxicillin 250mg bid"
	a, b := e.Process(text, "a"), e.Process(text, "b")
	assert.Equal(t, a.MedicalInfo, b.MedicalInfo)
	assert.NotSame(t, a.MedicalInfo, b.MedicalInfo)
}

func TestEngine_Fingerprint(t *testing.T) {
	assert.NotEqual(t,
		newTestEngine(Options{}).Fingerprint(),
		newTestEngine(Options{DedupeMedications: true}).Fingerprint())
	assert.Equal(t, DefaultMaxTextLength, newTestEngine(Options{}).Options().MaxTextLength)
}

func TestResult_JSON(t *testing.T) {
	res := newTestEngine(Options{}).Process("Patient Name: Jane Doe\nGlucose: 150\nAmoxicillin 500mg", "t")
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["success"])
	assert.NotContains(t, doc, "error")
	assert.Equal(t, "2024-05-01T09:30:00Z", doc["processedAt"])

	mi := doc["medicalInfo"].(map[string]interface{})
	assert.Equal(t, []interface{}{"Jane Doe"}, mi["patientName"])
	assert.Equal(t, 150.0, mi["labResults"].(map[string]interface{})["glucose"])
	assert.Equal(t, map[string]interface{}{}, mi["vitalSigns"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "Amoxicillin", "dosage": "500mg"},
	}, mi["medications"])

	patient := mi["structuredData"].(map[string]interface{})["patient"].(map[string]interface{})
	assert.Equal(t, "Jane Doe", patient["name"])
	assert.Contains(t, patient, "email")
	assert.Nil(t, patient["email"])
}

func TestMedicalInfo_JSONRoundTrip(t *testing.T) {
	res := newTestEngine(Options{}).Process(
		"Patient Name: Jane Doe\nMedications: metformin\nMetformin 500mg bid\nGlucose: 150\nHb: pending", "t")
	first, err := json.Marshal(res.MedicalInfo)
	require.NoError(t, err)

	var decoded MedicalInfo
	require.NoError(t, json.Unmarshal(first, &decoded))
	assert.Equal(t, []string{"metformin"}, decoded.Fields.Get(FieldMedications))

	second, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestFailure_JSON(t *testing.T) {
	data, err := json.Marshal(Failure(errors.New("unsupported file type: .docx")))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"success":false,"error":"unsupported file type: .docx","extractedText":"","medicalInfo":{},"confidence":0}`,
		string(data))

	assert.Equal(t, "extraction failed", Failure(nil).Error)
	assert.Error(t, Failure(nil).Err())
	assert.NoError(t, (&Result{Success: true}).Err())
}

type fakeDecoder struct {
	text  string
	err   error
	calls int
}

func (d *fakeDecoder) Decode(_ context.Context, r io.Reader, _ string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	if d.text != "" {
		return d.text, nil
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

type mapCache struct {
	entries map[string]*Result
	getErr  error
}

func (c *mapCache) Get(_ context.Context, key string) (*Result, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	r, ok := c.entries[key]
	return r, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, res *Result) error {
	c.entries[key] = res
	return nil
}

type countingRecorder struct {
	results []*Result
	hits    int
}

func (r *countingRecorder) RecordResult(res *Result, _ time.Duration) {
	r.results = append(r.results, res)
}

func (r *countingRecorder) RecordCacheHit() { r.hits++ }

func TestPipeline_ProcessFile(t *testing.T) {
	rec := &countingRecorder{}
	p := NewPipeline(newTestEngine(Options{}), &fakeDecoder{}, zerolog.Nop(), WithRecorder(rec))

	res := p.ProcessFile(context.Background(), strings.NewReader("Diagnosis: asthma"), "a.txt")
	require.True(t, res.Success)
	assert.Equal(t, "respiratory", res.MedicalInfo.DiseaseCategory)
	assert.Len(t, rec.results, 1)
}

func TestPipeline_DecodeFailure(t *testing.T) {
	rec := &countingRecorder{}
	dec := &fakeDecoder{err: errors.New("unsupported file type: .docx")}
	p := NewPipeline(newTestEngine(Options{}), dec, zerolog.Nop(), WithRecorder(rec))

	res := p.ProcessFile(context.Background(), strings.NewReader("x"), "a.docx")
	assert.False(t, res.Success)
	assert.Equal(t, "unsupported file type: .docx", res.Error)
	assert.Equal(t, 0, res.Confidence)
	assert.Empty(t, res.ExtractedText)
	require.Len(t, rec.results, 1)
	assert.False(t, rec.results[0].Success)
}

func TestPipeline_Cache(t *testing.T) {
	rec := &countingRecorder{}
	cache := &mapCache{entries: map[string]*Result{}}
	e := newTestEngine(Options{})
	p := NewPipeline(e, &fakeDecoder{}, zerolog.Nop(), WithCache(cache), WithRecorder(rec))

	first := p.ProcessText(context.Background(), "Diagnosis: asthma", "a")
	second := p.ProcessText(context.Background(), "Diagnosis: asthma", "b")

	assert.Same(t, first, second)
	assert.Equal(t, 1, rec.hits)
	assert.Len(t, rec.results, 1)
	assert.Contains(t, cache.entries, CacheKey(e.Fingerprint(), "Diagnosis: asthma"))
}

func TestPipeline_CacheErrorFallsThrough(t *testing.T) {
	cache := &mapCache{entries: map[string]*Result{}, getErr: errors.New("connection refused")}
	p := NewPipeline(newTestEngine(Options{}), &fakeDecoder{}, zerolog.Nop(), WithCache(cache))

	res := p.ProcessText(context.Background(), "Diagnosis: asthma", "a")
	assert.True(t, res.Success)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("v1", "text")
	assert.Equal(t, a, CacheKey("v1", "text"))
	assert.NotEqual(t, a, CacheKey("v2", "text"))
	assert.NotEqual(t, a, CacheKey("v1", "other"))
	assert.True(t, strings.HasPrefix(a, "medreports:result:"))
}
