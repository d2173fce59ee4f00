package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/LucasKiller/DocLens/internal/config"
)

// TesseractProvider runs a local Tesseract engine over images, and routes
// PDF inputs through the embedded-text/raster strategy.
type TesseractProvider struct {
	langs string
	pdf   *pdfStrategy
}

func NewTesseractProvider(cfg config.Config) *TesseractProvider {
	p := &TesseractProvider{langs: cfg.OCRLangs}
	p.pdf = newPDFStrategy(cfg, p.recognizePage)
	return p
}

func (p *TesseractProvider) Extract(ctx context.Context, filePath string) (Extract, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		return p.pdf.extract(ctx, filePath)
	}

	text, confidence, err := p.recognizePage(ctx, filePath)
	if err != nil {
		return Extract{}, err
	}
	return Extract{Text: text, Language: p.langs, Confidence: confidence}, nil
}

// recognizePage runs one engine session over a single image. The engine
// worker is a scoped resource: it is created here and closed on every exit
// path so failures cannot leak workers across requests.
func (p *TesseractProvider) recognizePage(ctx context.Context, imagePath string) (string, *float64, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if p.langs != "" {
		if err := client.SetLanguage(strings.Split(p.langs, "+")...); err != nil {
			return "", nil, fmt.Errorf("set ocr languages %q: %w", p.langs, err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", nil, fmt.Errorf("set image %s: %w", filepath.Base(imagePath), err)
	}

	text, err := client.Text()
	if err != nil {
		return "", nil, fmt.Errorf("recognize %s: %w", filepath.Base(imagePath), err)
	}

	return strings.TrimSpace(text), meanWordConfidence(client), nil
}

// meanWordConfidence averages per-word confidences. Tesseract does not expose
// a document-level score through gosseract, so absence is tolerated.
func meanWordConfidence(client *gosseract.Client) *float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}

	sum := 0.0
	for _, box := range boxes {
		sum += box.Confidence
	}
	mean := sum / float64(len(boxes))
	return &mean
}
