package decode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ErrNoLicense is returned for every PDF until a license key is applied.
var ErrNoLicense = errors.New("PDF decoding requires a unipdf license key (UNIDOC_LICENSE_KEY)")

var licensed atomic.Bool

// SetLicense registers a unipdf metered license key. An empty key leaves PDF
// decoding disabled.
func SetLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unipdf license: %w", err)
	}
	licensed.Store(true)
	return nil
}

// PDFEnabled reports whether a license key has been applied.
func PDFEnabled() bool {
	return licensed.Load()
}

func extractPDFText(data []byte) (string, error) {
	if !licensed.Load() {
		return "", ErrNoLicense
	}
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	enc, err := pdfReader.IsEncrypted()
	if err != nil {
		return "", fmt.Errorf("failed checking encryption: %w", err)
	}
	if enc {
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil {
			return "", fmt.Errorf("failed to decrypt PDF (empty password): %w", err)
		}
		if !ok {
			return "", errors.New("PDF is password-protected")
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("failed to get page count: %w", err)
	}
	if numPages == 0 {
		return "", errors.New("PDF has no pages")
	}

	var sb strings.Builder
	var lastErr error
	extracted := 0
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			lastErr = err
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			lastErr = err
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			lastErr = err
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		extracted++
	}

	if extracted == 0 && lastErr != nil {
		return "", fmt.Errorf("no page could be extracted: %w", lastErr)
	}
	return sb.String(), nil
}
