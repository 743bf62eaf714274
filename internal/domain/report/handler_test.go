package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medreports/medreports/internal/platform/auth"
)

func multipartUpload(t *testing.T, fileName, body string) *http.Request {
	t.Helper()
	return multipartUploadAs(t, fileName, "application/octet-stream", body)
}

// multipartUploadAs uploads body with the given part Content-Type.
func multipartUploadAs(t *testing.T, fileName, contentType, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("report_title", "Blood panel"); err != nil {
		t.Fatal(err)
	}
	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name="medical_file"; filename=%q`, fileName))
	part.Set(echo.HeaderContentType, contentType)
	fw, err := w.CreatePart(part)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req.WithContext(auth.WithUser(req.Context(), "staff-7", []string{auth.RoleStaff}))
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func TestHandler_UploadReport(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	h := NewHandler(f.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(multipartUpload(t, "labs.txt", "Glucose: 110"), rec), owner.ID.String())
	if err := h.UploadReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		Report       Report `json:"report"`
		AIProcessing bool   `json:"ai_processing"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.AIProcessing || resp.Report.FileName != "labs.txt" {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}
	if resp.Report.UploadedBy == nil || *resp.Report.UploadedBy != "staff-7" {
		t.Errorf("expected uploaded_by staff-7, got %v", resp.Report.UploadedBy)
	}
	if resp.Report.Title == nil || *resp.Report.Title != "Blood panel" {
		t.Errorf("expected title, got %v", resp.Report.Title)
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
}

func TestHandler_UploadReport_Errors(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	h := NewHandler(f.svc)
	e := echo.New()

	c := withID(e.NewContext(multipartUpload(t, "labs.exe", "MZ"), httptest.NewRecorder()), owner.ID.String())
	expectHTTPError(t, h.UploadReport(c), http.StatusUnsupportedMediaType)

	c = withID(e.NewContext(multipartUpload(t, "labs.txt", "x"), httptest.NewRecorder()), uuid.New().String())
	expectHTTPError(t, h.UploadReport(c), http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	c = withID(e.NewContext(req, httptest.NewRecorder()), owner.ID.String())
	expectHTTPError(t, h.UploadReport(c), http.StatusBadRequest)

	c = withID(e.NewContext(multipartUpload(t, "labs.txt", "x"), httptest.NewRecorder()), "nope")
	expectHTTPError(t, h.UploadReport(c), http.StatusBadRequest)
}

func TestHandler_UploadReport_QueueFull(t *testing.T) {
	f := newFixture(sampleResult(85))
	f.queue.full = true
	owner := f.patients.add("Jane", "Doe")
	h := NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(multipartUpload(t, "labs.txt", "x"), rec), owner.ID.String())
	if err := h.UploadReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_ReportReads(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "Patient Name: Jane Doe")
	h := NewHandler(f.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	if err := h.GetAIStatus(withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"processing"`) {
		t.Errorf("unexpected ai-status body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if err := h.GetMedicalData(withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), "no extracted medical data") {
		t.Errorf("expected placeholder message, got %s", rec.Body.String())
	}

	if err := f.queue.drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	if err := h.GetMedicalData(withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())); err != nil {
		t.Fatal(err)
	}
	var data MedicalData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Record == nil || data.Record.PatientID != "MRN-42" || len(data.LabResults) != 2 {
		t.Errorf("unexpected medical data: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if err := h.ListReports(withID(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), owner.ID.String())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected list body: %s", rec.Body.String())
	}
}

func TestHandler_Download(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit notes.txt", "file contents")
	h := NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	if err := h.Download(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "file contents" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != `attachment; filename="visit notes.txt"` {
		t.Errorf("unexpected disposition %q", cd)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}

	rec = httptest.NewRecorder()
	c = withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	if err := h.Preview(c); err != nil {
		t.Fatal(err)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.HasPrefix(cd, "inline") {
		t.Errorf("expected inline disposition, got %q", cd)
	}

	c = withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()), uuid.New().String())
	expectHTTPError(t, h.Download(c), http.StatusNotFound)
}

func uploadVia(t *testing.T, h *Handler, owner uuid.UUID, req *http.Request) Report {
	t.Helper()
	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(req, rec), owner.String())
	if err := h.UploadReport(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Report Report `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Report
}

func TestHandler_UploadReport_DetectsContentType(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	h := NewHandler(f.svc)

	rep := uploadVia(t, h, owner.ID, multipartUploadAs(t, "labs.txt", "text/html", "Glucose: 110"))
	if rep.FileType != "text/plain; charset=utf-8" {
		t.Errorf("expected detected text/plain, got %q", rep.FileType)
	}

	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	if err := h.Preview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/plain; charset=utf-8" {
		t.Errorf("unexpected preview content type %q", ct)
	}
	if rec.Body.String() != "Glucose: 110" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_Preview_RefusesMarkup(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	h := NewHandler(f.svc)

	body := "<script>alert(document.cookie)</script>\nGlucose: 110"
	rep := uploadVia(t, h, owner.ID, multipartUploadAs(t, "note.txt", "text/html", body))
	if strings.HasPrefix(rep.FileType, "text/plain") {
		t.Errorf("expected markup to be detected, got %q", rep.FileType)
	}

	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	expectHTTPError(t, h.Preview(c), http.StatusUnsupportedMediaType)
	if rec.Body.Len() != 0 {
		t.Errorf("expected no body, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	if err := h.Download(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != echo.MIMEOctetStream {
		t.Errorf("expected octet-stream download, got %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %q", cd)
	}
}

func TestHandler_ExtractText(t *testing.T) {
	f := newFixture(sampleResult(85))
	owner := f.patients.add("Jane", "Doe")
	rep := f.upload(t, owner.ID, "visit.txt", "plain body")
	h := NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rep.ID.String())
	if err := h.ExtractText(c); err != nil {
		t.Fatal(err)
	}
	var text ExtractedText
	if err := json.Unmarshal(rec.Body.Bytes(), &text); err != nil {
		t.Fatal(err)
	}
	if text.Text != "plain body" || text.Source != "decoder" {
		t.Errorf("unexpected text response: %+v", text)
	}
}

func TestHandler_SupportedTypes(t *testing.T) {
	h := NewHandler(newFixture(nil).svc)
	rec := httptest.NewRecorder()
	if err := h.SupportedTypes(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Extensions  []string `json:"extensions"`
		MaxFileSize int64    `json:"maxFileSize"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Extensions) == 0 || resp.MaxFileSize != 50*1024*1024 {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}
}

func TestHandler_InvalidReportID(t *testing.T) {
	h := NewHandler(newFixture(nil).svc)
	c := withID(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()), "bad")
	expectHTTPError(t, h.GetReport(c), http.StatusBadRequest)
}
