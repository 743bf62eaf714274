package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/extraction"
	"github.com/medreports/medreports/internal/platform/blobstore"
	"github.com/medreports/medreports/internal/platform/db"
	"github.com/medreports/medreports/internal/platform/decode"
	"github.com/medreports/medreports/internal/platform/worker"
)

// Processor runs a stored document through decoding and extraction.
type Processor interface {
	ProcessFile(ctx context.Context, r io.Reader, fileName string) *extraction.Result
}

// Queue accepts background jobs. *worker.Pool satisfies it.
type Queue interface {
	Submit(job worker.Job) bool
}

// TxRunner runs fn in a transaction carried by the context it receives.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PGTxRunner runs transactions on a pgx pool.
func PGTxRunner(pool db.TxBeginner) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
}

type Config struct {
	// AutoUpdateConfidence is the minimum confidence at which an extraction
	// overwrites the owning patient's contact and diagnosis fields.
	AutoUpdateConfidence int
}

// DefaultAutoUpdateConfidence is used when Config leaves the threshold unset.
const DefaultAutoUpdateConfidence = 70

// UploadInput is one file uploaded for a patient.
type UploadInput struct {
	Title       string
	Description string
	FileName    string
	Content     io.Reader
	UploadedBy  string
}

type Service struct {
	reports   Repository
	patients  patient.Repository
	blobs     blobstore.BlobStore
	processor Processor
	decoder   extraction.Decoder
	queue     Queue
	withTx    TxRunner
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	reports Repository,
	patients patient.Repository,
	blobs blobstore.BlobStore,
	processor Processor,
	decoder extraction.Decoder,
	queue Queue,
	withTx TxRunner,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.AutoUpdateConfidence <= 0 {
		cfg.AutoUpdateConfidence = DefaultAutoUpdateConfidence
	}
	return &Service{
		reports:   reports,
		patients:  patients,
		blobs:     blobs,
		processor: processor,
		decoder:   decoder,
		queue:     queue,
		withTx:    withTx,
		cfg:       cfg,
		logger:    logger.With().Str("component", "reports").Logger(),
		now:       time.Now,
	}
}

// Upload stores the file, records the report with a processing log entry and
// queues extraction. The stored content type is detected from the file
// itself. When the queue is full the report is kept, its log is marked
// failed and ErrQueueFull is returned alongside it.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, in UploadInput) (*Report, error) {
	if !decode.Supported(in.FileName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, strings.ToLower(filepath.Ext(in.FileName)))
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}

	detected, content, err := decode.Sniff(in.Content)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    in.FileName,
		ContentType: detected.String(),
		PatientID:   patientID.String(),
		CreatedBy:   in.UploadedBy,
	}, content)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	rep := &Report{
		PatientID:   patientID,
		Title:       nonEmpty(in.Title),
		Description: nonEmpty(in.Description),
		FileName:    in.FileName,
		BlobID:      meta.ID,
		FileType:    meta.ContentType,
		FileSize:    meta.Size,
		FileHash:    meta.Hash,
		UploadedBy:  nonEmpty(in.UploadedBy),
	}
	entry := &ProcessingLog{FileName: in.FileName, Status: StatusProcessing}

	err = s.withTx(ctx, func(ctx context.Context) error {
		if err := s.reports.CreateReport(ctx, rep); err != nil {
			return err
		}
		entry.ReportID = rep.ID
		return s.reports.CreateLog(ctx, entry)
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, meta.ID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("blob_id", meta.ID).Msg("orphaned blob cleanup failed")
		}
		return nil, err
	}

	status := StatusProcessing
	rep.Status = &status
	rep.AIProcessedAt = &entry.ProcessedAt

	reportID, logID := rep.ID, entry.ID
	queued := s.queue.Submit(worker.Job{
		Name: "process-report:" + reportID.String(),
		Execute: func(ctx context.Context) error {
			return s.Process(ctx, reportID, logID)
		},
	})
	if !queued {
		s.fail(ctx, logID, ErrQueueFull.Error(), 0)
		failed := StatusFailed
		rep.Status = &failed
		return rep, ErrQueueFull
	}

	s.logger.Info().
		Str("report_id", reportID.String()).
		Str("patient_id", patientID.String()).
		Int64("size", meta.Size).
		Msg("report uploaded, processing queued")
	return rep, nil
}

// Process extracts a stored report and persists the result. Failures are
// recorded on the processing log identified by logID and returned.
func (s *Service) Process(ctx context.Context, reportID, logID uuid.UUID) error {
	start := s.now()
	elapsed := func() float64 { return s.now().Sub(start).Seconds() }

	rep, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		s.fail(ctx, logID, err.Error(), elapsed())
		return err
	}

	rc, _, err := s.blobs.Download(ctx, rep.BlobID)
	if err != nil {
		err = fmt.Errorf("load file: %w", err)
		s.fail(ctx, logID, err.Error(), elapsed())
		return err
	}
	res := s.processor.ProcessFile(ctx, rc, rep.FileName)
	rc.Close()

	if !res.Success {
		s.fail(ctx, logID, res.Error, elapsed())
		return res.Err()
	}

	var identifier string
	err = s.withTx(ctx, func(ctx context.Context) error {
		var err error
		identifier, err = s.persist(ctx, rep, logID, res, elapsed())
		return err
	})
	if err != nil {
		s.fail(ctx, logID, err.Error(), elapsed())
		return fmt.Errorf("persist extraction: %w", err)
	}

	s.logger.Info().
		Str("report_id", reportID.String()).
		Str("record_patient_id", identifier).
		Int("confidence", res.Confidence).
		Float64("processing_time", elapsed()).
		Msg("report processed")
	return nil
}

// fail marks a processing log failed. It runs outside any transaction so the
// failure is recorded even when the data writes rolled back.
func (s *Service) fail(ctx context.Context, logID uuid.UUID, msg string, elapsed float64) {
	if msg == "" {
		msg = "processing failed"
	}
	if err := s.reports.UpdateLog(ctx, logID, LogUpdate{
		Status:         StatusFailed,
		ProcessingTime: elapsed,
		ErrorMessage:   &msg,
	}); err != nil {
		s.logger.Error().Err(err).Str("log_id", logID.String()).Msg("failed to record processing failure")
	}
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.reports.GetReport(ctx, id)
}

func (s *Service) ListReports(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.reports.ListByPatient(ctx, patientID, limit, offset)
}

// AIStatus reports the latest processing state of a report.
func (s *Service) AIStatus(ctx context.Context, reportID uuid.UUID) (*AIStatus, error) {
	if _, err := s.reports.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	l, err := s.reports.LatestLog(ctx, reportID)
	if errors.Is(err, ErrNotFound) {
		return &AIStatus{Status: StatusNotProcessed}, nil
	}
	if err != nil {
		return nil, err
	}
	return &AIStatus{
		Status:         l.Status,
		Confidence:     l.Confidence,
		ProcessedAt:    &l.ProcessedAt,
		ProcessingTime: l.ProcessingTime,
		Error:          l.ErrorMessage,
	}, nil
}

// MedicalData returns the persisted extraction of a report, or nil when the
// report exists but nothing was extracted from it.
func (s *Service) MedicalData(ctx context.Context, reportID uuid.UUID) (*MedicalData, error) {
	if _, err := s.reports.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	data, err := s.reports.GetMedicalData(ctx, reportID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Open returns the stored file of a report. The caller closes the reader.
func (s *Service) Open(ctx context.Context, reportID uuid.UUID) (io.ReadCloser, *Report, *blobstore.BlobMetadata, error) {
	rep, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, nil, nil, err
	}
	rc, meta, err := s.blobs.Download(ctx, rep.BlobID)
	if err != nil {
		return nil, nil, nil, err
	}
	return rc, rep, meta, nil
}

// Text returns the text of a report: the stored extraction when processing
// completed, otherwise a fresh decode of the file.
func (s *Service) Text(ctx context.Context, reportID uuid.UUID) (*ExtractedText, error) {
	rep, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	l, err := s.reports.LatestLog(ctx, reportID)
	switch {
	case err == nil:
		if l.Status == StatusCompleted && l.ExtractedText != nil {
			return &ExtractedText{Text: *l.ExtractedText, Source: "processing_log"}, nil
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	rc, _, err := s.blobs.Download(ctx, rep.BlobID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	text, err := s.decoder.Decode(ctx, rc, rep.FileName)
	if err != nil {
		return nil, err
	}
	return &ExtractedText{Text: text, Source: "decoder"}, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
