package decode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractOCR runs the tesseract CLI, feeding the image on stdin and
// reading the recognized text from stdout.
type TesseractOCR struct {
	Command  string
	Language string
}

// NewTesseractOCR returns an OCR backed by command, "tesseract" when empty.
func NewTesseractOCR(command string) *TesseractOCR {
	if command == "" {
		command = "tesseract"
	}
	return &TesseractOCR{Command: command, Language: "eng"}
}

// Recognize implements OCR.
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	args := []string{"stdin", "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	cmd := exec.CommandContext(ctx, t.Command, args...)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", t.Command, err)
		}
		return "", fmt.Errorf("%s: %w: %s", t.Command, err, msg)
	}
	return stdout.String(), nil
}
