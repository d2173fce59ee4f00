package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/LucasKiller/DocLens/internal/domain"
)

// FileManager owns the on-disk layout for uploaded originals and generated
// reports. Uploads are stored under an opaque uuid name; the original
// filename only lives in the document record.
type FileManager struct {
	baseDir        string
	uploadsDir     string
	reportsDir     string
	maxUploadBytes int64
}

var allowedUploadMIMEs = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/tiff":      {},
	"image/bmp":       {},
	"application/pdf": {},
}

var mimeExtensionFallback = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/tiff":      ".tiff",
	"image/bmp":       ".bmp",
	"application/pdf": ".pdf",
}

func NewFileManager(baseDir string, maxUploadBytes int64) (*FileManager, error) {
	fm := &FileManager{
		baseDir:        baseDir,
		uploadsDir:     filepath.Join(baseDir, "uploads"),
		reportsDir:     filepath.Join(baseDir, "reports"),
		maxUploadBytes: maxUploadBytes,
	}

	dirs := []string{fm.baseDir, fm.uploadsDir, fm.reportsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fm, nil
}

// SaveUpload streams an uploaded document to disk, enforcing the configured
// size limit and the image/PDF allow-list. It returns the storage path, the
// resolved MIME type and the number of bytes written.
func (fm *FileManager) SaveUpload(file multipart.File, filename, declaredMIME string) (string, string, int64, error) {
	sample := make([]byte, 512)
	n, err := file.Read(sample)
	if err != nil && err != io.EOF {
		return "", "", 0, fmt.Errorf("read upload sample: %w", err)
	}
	sample = sample[:n]

	contentType := resolveContentType(sample, declaredMIME)
	if _, ok := allowedUploadMIMEs[contentType]; !ok {
		return "", "", 0, fmt.Errorf("unsupported file type %s: %w", contentType, domain.ErrInvalidUpload)
	}

	// the stored extension comes from the resolved type, not the client
	// filename: the OCR pipeline dispatches PDFs on it, and a PDF uploaded
	// as scan.png must still land in the PDF path
	ext := fallbackExtension(contentType)

	id := uuid.NewString()
	path := filepath.Join(fm.uploadsDir, fmt.Sprintf("%s%s", id, ext))

	size, err := fm.writeWithLimit(path, sample, file)
	if err != nil {
		return "", "", 0, err
	}

	return path, contentType, size, nil
}

func (fm *FileManager) ReportPath(id string) string {
	return filepath.Join(fm.reportsDir, fmt.Sprintf("%s.pdf", id))
}

// RemoveDocumentFiles deletes the stored original and any generated report.
func (fm *FileManager) RemoveDocumentFiles(storagePath, docID string) {
	if storagePath != "" {
		_ = os.Remove(storagePath)
	}
	_ = os.Remove(fm.ReportPath(docID))
}

func (fm *FileManager) writeWithLimit(path string, sample []byte, file multipart.File) (int64, error) {
	if fm.maxUploadBytes > 0 && int64(len(sample)) > fm.maxUploadBytes {
		return 0, fmt.Errorf("file exceeds maximum size: %w", domain.ErrInvalidUpload)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	total := int64(0)

	cleanup := func(err error) (int64, error) {
		out.Close()
		os.Remove(path)
		return 0, err
	}

	if len(sample) > 0 {
		if _, err := out.Write(sample); err != nil {
			return cleanup(fmt.Errorf("write upload sample: %w", err))
		}
		total += int64(len(sample))
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(fmt.Errorf("file exceeds maximum size: %w", domain.ErrInvalidUpload))
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write upload file: %w", werr))
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read upload content: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("close upload file: %w", err)
	}

	return total, nil
}

// resolveContentType prefers sniffed content; the client-declared type is
// only trusted when sniffing is inconclusive (tiff, notably, is not in the
// sniff table).
func resolveContentType(sample []byte, declaredMIME string) string {
	contentType := strings.ToLower(http.DetectContentType(sample))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "application/octet-stream" && declaredMIME != "" {
		contentType = strings.ToLower(strings.TrimSpace(declaredMIME))
	}
	return contentType
}

func fallbackExtension(contentType string) string {
	if ext, ok := mimeExtensionFallback[contentType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
