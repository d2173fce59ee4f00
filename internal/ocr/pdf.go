package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/LucasKiller/DocLens/internal/config"
)

// pdfTextLanguage tags results produced by the embedded-text fast path, as
// opposed to OCR over rasterized pages.
const pdfTextLanguage = "pdf-text"

type pageRecognizer func(ctx context.Context, imagePath string) (string, *float64, error)

// pdfStrategy decides, once per PDF, between embedded text extraction and
// the full rasterize-then-OCR pipeline. Digitally authored PDFs carry their
// text in the structure; scanned ones need the raster path.
type pdfStrategy struct {
	langs     string
	threshold int
	recognize pageRecognizer

	// seams for tests; production wiring set in newPDFStrategy
	embeddedText func(path string) (string, error)
	rasterize    func(ctx context.Context, path, outDir string) ([]string, error)
}

func newPDFStrategy(cfg config.Config, recognize pageRecognizer) *pdfStrategy {
	r := &rasterizer{binary: cfg.PdftoppmPath, dpi: cfg.RasterDPI}
	return &pdfStrategy{
		langs:        cfg.OCRLangs,
		threshold:    cfg.PDFTextThreshold,
		recognize:    recognize,
		embeddedText: extractEmbeddedText,
		rasterize:    r.run,
	}
}

func (s *pdfStrategy) extract(ctx context.Context, filePath string) (Extract, error) {
	embedded, err := s.embeddedText(filePath)
	if err != nil {
		// a malformed text layer is not fatal: scanned PDFs fall through
		// to rasterization anyway
		log.WithError(err).WithField("file", filepath.Base(filePath)).
			Warn("embedded text extraction failed, falling back to raster OCR")
	} else if strippedLength(embedded) > s.threshold {
		return Extract{Text: embedded, Language: pdfTextLanguage}, nil
	}

	outDir, err := os.MkdirTemp("", "pdf-pages-")
	if err != nil {
		return Extract{}, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	images, err := s.rasterize(ctx, filePath, outDir)
	if err != nil {
		return Extract{}, err
	}

	parts := make([]string, 0, len(images))
	for _, image := range images {
		text, _, err := s.recognize(ctx, image)
		if err != nil {
			return Extract{}, fmt.Errorf("ocr page %s: %w", filepath.Base(image), err)
		}
		parts = append(parts, text)
	}

	return Extract{Text: strings.Join(parts, "\n"), Language: s.langs}, nil
}

// rasterizer shells out to poppler's pdftoppm, one PNG per page.
type rasterizer struct {
	binary string
	dpi    int
}

func (r *rasterizer) run(ctx context.Context, filePath, outDir string) ([]string, error) {
	prefix := filepath.Join(outDir, "page")

	cmd := exec.CommandContext(ctx, r.binary, "-png", "-r", strconv.Itoa(r.dpi), filePath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rasterized pages: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	sortPages(images)
	return images, nil
}

// sortPages orders page-1.png, page-2.png, ..., page-10.png numerically;
// plain lexicographic order would interleave them.
func sortPages(images []string) {
	sort.Slice(images, func(i, j int) bool {
		return pageNumber(images[i]) < pageNumber(images[j])
	})
}

func pageNumber(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func extractEmbeddedText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// strippedLength counts characters that remain after removing all
// whitespace; the dispatch threshold is measured on this count.
func strippedLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
