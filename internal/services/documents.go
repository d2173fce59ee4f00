package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/llm"
	"github.com/LucasKiller/DocLens/internal/storage"
)

// Dispatcher hands a document id to background processing without waiting
// for it. The orchestrator implements this.
type Dispatcher interface {
	Enqueue(docID string)
}

type DocumentsService struct {
	store    *storage.Store
	files    *storage.FileManager
	answerer llm.Answerer
	dispatch Dispatcher
}

func NewDocumentsService(store *storage.Store, files *storage.FileManager, answerer llm.Answerer, dispatch Dispatcher) *DocumentsService {
	return &DocumentsService{store: store, files: files, answerer: answerer, dispatch: dispatch}
}

func assertAccess(doc domain.Document, actor domain.Identity) error {
	if !actor.IsAdmin() && doc.OwnerID != actor.UserID {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrForbidden)
	}
	return nil
}

// CreateFromUpload stores the file, creates the QUEUED document and hands it
// to the dispatcher. The caller gets the QUEUED record back immediately;
// OCR latency never blocks the upload request.
func (s *DocumentsService) CreateFromUpload(file multipart.File, filename, declaredMIME string, actor domain.Identity) (domain.Document, error) {
	path, mimeType, size, err := s.files.SaveUpload(file, filename, declaredMIME)
	if err != nil {
		return domain.Document{}, err
	}

	doc, err := s.store.CreateDocument(domain.Document{
		OwnerID:     actor.UserID,
		Filename:    filename,
		MimeType:    mimeType,
		Size:        size,
		StoragePath: path,
		Status:      domain.StatusQueued,
	})
	if err != nil {
		return domain.Document{}, err
	}

	s.dispatch.Enqueue(doc.ID)
	return doc, nil
}

// List returns the caller's documents; admins see everything and may filter
// by owner.
func (s *DocumentsService) List(actor domain.Identity, ownerFilter string) []domain.Document {
	if actor.IsAdmin() {
		return s.store.ListDocuments(ownerFilter)
	}
	return s.store.ListDocuments(actor.UserID)
}

// Detail returns the document with its OCR result when one exists.
func (s *DocumentsService) Detail(docID string, actor domain.Identity) (domain.Document, *domain.OcrResult, error) {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return domain.Document{}, nil, err
	}
	if err := assertAccess(doc, actor); err != nil {
		return domain.Document{}, nil, err
	}

	res, err := s.store.GetOcrResult(docID)
	if errors.Is(err, domain.ErrNotFound) {
		return doc, nil, nil
	}
	if err != nil {
		return domain.Document{}, nil, err
	}
	return doc, &res, nil
}

type DocumentStatus struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ProcessedAt int64  `json:"processedAt,omitempty"`
}

func (s *DocumentsService) Status(docID string, actor domain.Identity) (DocumentStatus, error) {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return DocumentStatus{}, err
	}
	if err := assertAccess(doc, actor); err != nil {
		return DocumentStatus{}, err
	}
	return DocumentStatus{Status: doc.Status, Error: doc.Error, ProcessedAt: doc.ProcessedAt}, nil
}

// Ask answers a question grounded in the document's OCR text. It requires a
// DONE document with a stored result; anything else is rejected before the
// answerer is ever invoked, and no interaction is recorded on failure.
func (s *DocumentsService) Ask(ctx context.Context, docID string, actor domain.Identity, question string) (domain.LlmInteraction, error) {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return domain.LlmInteraction{}, err
	}
	if err := assertAccess(doc, actor); err != nil {
		return domain.LlmInteraction{}, err
	}

	if doc.Status != domain.StatusDone {
		return domain.LlmInteraction{}, fmt.Errorf("ocr not finished for document %s: %w", docID, domain.ErrForbidden)
	}
	res, err := s.store.GetOcrResult(docID)
	if err != nil {
		return domain.LlmInteraction{}, fmt.Errorf("ocr not finished for document %s: %w", docID, domain.ErrForbidden)
	}

	answer, err := s.answerer.Answer(ctx, question, res.Text)
	if err != nil {
		return domain.LlmInteraction{}, fmt.Errorf("answer question: %w", err)
	}

	return s.store.AppendInteraction(domain.LlmInteraction{
		DocID:    docID,
		UserID:   actor.UserID,
		Question: question,
		Answer:   answer,
	})
}

// Retry re-enqueues a document for processing. The claim inside the
// orchestrator clears the previous error and replaces any earlier result.
func (s *DocumentsService) Retry(docID string, actor domain.Identity) error {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return err
	}
	if err := assertAccess(doc, actor); err != nil {
		return err
	}

	s.dispatch.Enqueue(doc.ID)
	return nil
}

func (s *DocumentsService) Delete(docID string, actor domain.Identity) error {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return err
	}
	if err := assertAccess(doc, actor); err != nil {
		return err
	}

	if err := s.store.DeleteDocument(docID); err != nil {
		return err
	}

	s.files.RemoveDocumentFiles(doc.StoragePath, docID)
	return nil
}

// Transcript assembles the downloadable text bundle: document metadata, the
// OCR text and every interaction in conversation order.
func (s *DocumentsService) Transcript(docID string, actor domain.Identity) (string, error) {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return "", err
	}
	if err := assertAccess(doc, actor); err != nil {
		return "", err
	}

	res, resErr := s.store.GetOcrResult(docID)
	inters := s.store.ListInteractions(docID)

	var b strings.Builder
	fmt.Fprintf(&b, "# Documento: %s (%s, %d bytes)\n", doc.Filename, doc.MimeType, doc.Size)
	fmt.Fprintf(&b, "Status: %s", doc.Status)
	if doc.Error != "" {
		fmt.Fprintf(&b, " | erro: %s", doc.Error)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Processado em: %s\n\n", formatUnix(doc.ProcessedAt))

	b.WriteString("## Texto OCR\n")
	if resErr == nil {
		b.WriteString(res.Text)
	} else {
		b.WriteString("(sem OCR)")
	}
	b.WriteString("\n\n")

	b.WriteString("## Interações LLM\n")
	if len(inters) == 0 {
		b.WriteString("(sem interações)\n")
	}
	for _, it := range inters {
		fmt.Fprintf(&b, "- [%s] Q: %s\n", formatUnix(it.CreatedAt), it.Question)
		fmt.Fprintf(&b, "  A: %s\n", it.Answer)
	}

	return b.String(), nil
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
