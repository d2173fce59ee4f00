package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/LucasKiller/DocLens/internal/domain"
)

// ReportService renders a document's OCR text and interaction history into
// a PDF for offline reading.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

func (s *ReportService) Generate(doc domain.Document, res *domain.OcrResult, inters []domain.LlmInteraction, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Documento %s", doc.ID), false)
	pdf.SetAuthor("DocLens", false)
	pdf.AddPage()

	title := doc.Filename
	if strings.TrimSpace(title) == "" {
		title = "Documento"
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", doc.Status))
	pdf.Ln(6)
	if doc.ProcessedAt != 0 {
		processedAt := time.Unix(doc.ProcessedAt, 0).Local()
		pdf.Cell(0, 6, fmt.Sprintf("Processado em: %s", processedAt.Format("02/01/2006 15:04")))
		pdf.Ln(6)
	}
	if res != nil && res.Language != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Idioma: %s", res.Language))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	ocrText := "(sem OCR)"
	if res != nil {
		ocrText = res.Text
	}
	s.writeSection(pdf, "Texto OCR", ocrText, false)
	pdf.Ln(8)

	var qa strings.Builder
	for _, it := range inters {
		qa.WriteString(fmt.Sprintf("Q: %s\n", it.Question))
		qa.WriteString(fmt.Sprintf("A: %s\n", it.Answer))
	}
	if qa.Len() == 0 {
		qa.WriteString("(sem interações)")
	}
	s.writeSection(pdf, "Interações LLM", qa.String(), true)

	// render to a temp file and rename so a concurrent request for the same
	// document never downloads a half-written PDF
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "report-*.tmp")
	if err != nil {
		return fmt.Errorf("create report temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := pdf.OutputFileAndClose(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish report: %w", err)
	}

	return nil
}

func (s *ReportService) writeSection(pdf *gofpdf.Fpdf, title, content string, bullet bool) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		pdf.MultiCell(0, 6, "(vazio)", "", "L", false)
		return
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		text := line
		if bullet {
			text = fmt.Sprintf("• %s", line)
		}
		pdf.MultiCell(0, 6, text, "", "L", false)
	}
}
