// Package ocr implements the document processing pipeline: the OCR provider
// abstraction, the PDF text/raster dispatch strategy and the orchestrator
// that drives a document through its lifecycle.
package ocr

import (
	"context"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// Extract is the outcome of running text extraction on one file. Language
// and Confidence are optional; providers leave them empty when the backend
// does not report them.
type Extract struct {
	Text       string
	Language   string
	Confidence *float64
}

// Provider extracts text from a file on disk. Failures carry a
// human-readable message which the orchestrator records verbatim on the
// document.
type Provider interface {
	Extract(ctx context.Context, filePath string) (Extract, error)
}
