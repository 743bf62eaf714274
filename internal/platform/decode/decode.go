// Package decode turns uploaded report files into plain text. Plain text is
// read directly, PDFs go through the unipdf text extractor and raster images
// through an OCR engine.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned for file extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// DecodeError wraps a failure of an underlying decoder.
type DecodeError struct {
	Ext string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s file: %v", e.Ext, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// OCR recognizes text in an encoded raster image.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type kind int

const (
	kindText kind = iota
	kindPDF
	kindImage
)

var extensions = map[string]kind{
	".txt":  kindText,
	".pdf":  kindPDF,
	".jpg":  kindImage,
	".jpeg": kindImage,
	".png":  kindImage,
	".bmp":  kindImage,
	".tiff": kindImage,
	".tif":  kindImage,
}

// SupportedExtensions lists the decodable extensions in sorted order.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether fileName has a decodable extension.
func Supported(fileName string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

// sniffLen is how much of a file is read to detect its type.
const sniffLen = 3072

// Sniff detects the content type of r from its leading bytes. The returned
// reader still yields the whole content.
func Sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

// Previewable reports whether contentType may be rendered inline: plain
// text, PDF or one of the decodable raster formats.
func Previewable(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mt {
	case "text/plain", "application/pdf", "image/png", "image/jpeg", "image/bmp", "image/tiff":
		return true
	}
	return false
}

// Decoder dispatches on the file extension.
type Decoder struct {
	ocr    OCR
	logger zerolog.Logger
}

// New creates a Decoder. A nil ocr makes every image a DecodeError.
func New(ocr OCR, logger zerolog.Logger) *Decoder {
	return &Decoder{ocr: ocr, logger: logger.With().Str("component", "decode").Logger()}
}

// Decode reads r and returns its text.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	k, ok := extensions[ext]
	if !ok {
		return "", unsupported(fileName)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fileName, err)
	}
	if len(data) == 0 {
		if k == kindText {
			return "", nil
		}
		return "", &DecodeError{Ext: ext, Err: errors.New("file is empty")}
	}

	detected := mimetype.Detect(data)
	if !matches(k, detected) {
		return "", &DecodeError{Ext: ext, Err: fmt.Errorf("content is %s", detected.String())}
	}

	var text string
	switch k {
	case kindPDF:
		text, err = extractPDFText(data)
	case kindImage:
		if d.ocr == nil {
			err = errors.New("no OCR engine configured")
			break
		}
		text, err = d.ocr.Recognize(ctx, data)
	default:
		text = string(bytes.ToValidUTF8(data, []byte("\uFFFD")))
	}
	if err != nil {
		return "", &DecodeError{Ext: ext, Err: err}
	}

	d.logger.Debug().Str("ext", ext).Int("bytes", len(data)).Int("chars", len(text)).Msg("document decoded")
	return text, nil
}

// matches reports whether the sniffed content type fits the declared kind.
func matches(k kind, m *mimetype.MIME) bool {
	switch k {
	case kindPDF:
		return m.Is("application/pdf")
	case kindImage:
		return strings.HasPrefix(m.String(), "image/")
	default:
		for ; m != nil; m = m.Parent() {
			if m.Is("text/plain") {
				return true
			}
		}
		return false
	}
}

func unsupported(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}
