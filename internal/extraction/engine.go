package extraction

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxTextLength caps Result.ExtractedText.
const DefaultMaxTextLength = 5000

// Options tune the engine. The zero value uses DefaultMaxTextLength and keeps
// duplicate medication entries.
type Options struct {
	MaxTextLength     int
	DedupeMedications bool
}

// Engine turns document text into a Result. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(logger zerolog.Logger, opts Options) *Engine {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	return &Engine{
		logger: logger.With().Str("component", "extraction").Logger(),
		opts:   opts,
		now:    time.Now,
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Fingerprint identifies the options that change extraction output.
func (e *Engine) Fingerprint() string {
	return "v1:dedupe=" + strconv.FormatBool(e.opts.DedupeMedications) +
		":max=" + strconv.Itoa(e.opts.MaxTextLength)
}

// Extract runs every extractor over text and assembles the structured record.
// Medications are matched against the raw text, everything else against the
// normalized text.
func (e *Engine) Extract(text string) *MedicalInfo {
	normalized := Normalize(text)

	fields := ExtractFields(normalized)
	category := ClassifyDisease(normalized)
	meds := ExtractMedications(text, e.opts.DedupeMedications)
	vitals := ExtractVitalSigns(normalized)
	labs := ExtractLabResults(normalized)

	return &MedicalInfo{
		Fields:          fields,
		DiseaseCategory: category,
		Medications:     meds,
		VitalSigns:      vitals,
		LabResults:      labs,
		StructuredData:  AssembleRecord(fields, category, meds, vitals, labs),
	}
}

// Process extracts text and scores it. A panic inside extraction is returned
// as a failed Result.
func (e *Engine) Process(text, source string) (res *Result) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("source", source).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("extraction panicked")
			res = Failure(fmt.Errorf("extraction failed: %v", r))
		}
	}()

	mi := e.Extract(text)
	processedAt := e.now().UTC()
	res = &Result{
		Success:       true,
		ExtractedText: Truncate(text, e.opts.MaxTextLength),
		MedicalInfo:   mi,
		Confidence:    Confidence(mi),
		ProcessedAt:   &processedAt,
	}

	e.logger.Info().
		Str("source", source).
		Bool("success", true).
		Int("confidence", res.Confidence).
		Str("disease_category", mi.DiseaseCategory).
		Dur("duration", e.now().Sub(start)).
		Msg("document processed")
	return res
}
