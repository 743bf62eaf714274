package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Decoder turns an uploaded file into text.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// ResultCache stores successful results by content key.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, res *Result) error
}

// Recorder receives per-document outcomes, typically for metrics.
type Recorder interface {
	RecordResult(res *Result, elapsed time.Duration)
	RecordCacheHit()
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCache puts a result cache in front of the engine.
func WithCache(c ResultCache) PipelineOption {
	return func(p *Pipeline) { p.cache = c }
}

// WithRecorder reports every processed document to r.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline decodes documents and runs them through the Engine.
type Pipeline struct {
	engine   *Engine
	decoder  Decoder
	cache    ResultCache
	recorder Recorder
	logger   zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(engine *Engine, decoder Decoder, logger zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		decoder: decoder,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFile decodes r according to fileName and processes the text. Decode
// errors, including unsupported formats, become failed Results.
func (p *Pipeline) ProcessFile(ctx context.Context, r io.Reader, fileName string) *Result {
	start := time.Now()
	text, err := p.decoder.Decode(ctx, r, fileName)
	if err != nil {
		p.logger.Warn().Err(err).Str("source", fileName).Msg("document decode failed")
		res := Failure(err)
		p.record(res, time.Since(start))
		return res
	}
	return p.processText(ctx, text, fileName, start)
}

// ProcessText processes already decoded text.
func (p *Pipeline) ProcessText(ctx context.Context, text, source string) *Result {
	return p.processText(ctx, text, source, time.Now())
}

func (p *Pipeline) processText(ctx context.Context, text, source string, start time.Time) *Result {
	key := CacheKey(p.engine.Fingerprint(), text)
	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn().Err(err).Msg("result cache get failed")
		} else if ok {
			if p.recorder != nil {
				p.recorder.RecordCacheHit()
			}
			return cached
		}
	}

	res := p.engine.Process(text, source)
	p.record(res, time.Since(start))

	if p.cache != nil && res.Success {
		if err := p.cache.Set(ctx, key, res); err != nil {
			p.logger.Warn().Err(err).Msg("result cache set failed")
		}
	}
	return res
}

func (p *Pipeline) record(res *Result, elapsed time.Duration) {
	if p.recorder != nil {
		p.recorder.RecordResult(res, elapsed)
	}
}

// CacheKey derives the cache key for text under the given engine fingerprint.
func CacheKey(fingerprint, text string) string {
	sum := sha256.Sum256([]byte(fingerprint + "\x00" + text))
	return "medreports:result:" + hex.EncodeToString(sum[:])
}
