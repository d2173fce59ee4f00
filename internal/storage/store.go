package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LucasKiller/DocLens/internal/domain"
)

type metaData struct {
	Users        map[string]domain.User             `json:"users"`
	Documents    map[string]domain.Document         `json:"documents"`
	OcrResults   map[string]domain.OcrResult        `json:"ocrResults"`
	Interactions map[string][]domain.LlmInteraction `json:"interactions"`
}

// Store persists all metadata in a single JSON file guarded by one lock.
// Every mutator changes memory and then writes the whole file through an
// atomic temp-file rename, so multi-record updates performed under the lock
// become visible together or not at all.
type Store struct {
	mu   sync.RWMutex
	path string
	data metaData
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &Store{path: filepath.Join(baseDir, "meta.json")}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = metaData{}
	s.ensureMaps()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("open meta file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			return s.saveLocked()
		}
		return fmt.Errorf("decode meta file: %w", err)
	}

	s.ensureMaps()
	return nil
}

// Users ------------------------------------------------------------------

func (s *Store) CreateUser(user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, fmt.Errorf("email %s: %w", user.Email, domain.ErrConflict)
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	now := time.Now().Unix()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.data.Users[user.ID] = user

	if err := s.saveLocked(); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return user, nil
}

func (s *Store) FindUserByEmail(email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data.Users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (s *Store) ListUsers() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt < users[j].CreatedAt })
	return users
}

func (s *Store) UpdateUser(user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.Users[user.ID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", user.ID, domain.ErrNotFound)
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().Unix()
	s.data.Users[user.ID] = user

	if err := s.saveLocked(); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	delete(s.data.Users, id)

	return s.saveLocked()
}

// Documents --------------------------------------------------------------

func (s *Store) CreateDocument(doc domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = domain.StatusQueued
	}
	now := time.Now().Unix()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	s.data.Documents[doc.ID] = doc

	if err := s.saveLocked(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (s *Store) GetDocument(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.data.Documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

// ListDocuments returns documents owned by ownerID, or every document when
// ownerID is empty, newest first.
func (s *Store) ListDocuments(ownerID string) []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0)
	for _, doc := range s.data.Documents {
		if ownerID == "" || doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt > docs[j].CreatedAt })
	return docs
}

// DeleteDocument removes the document together with its OCR result and
// interaction history.
func (s *Store) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	delete(s.data.Documents, id)
	delete(s.data.OcrResults, id)
	delete(s.data.Interactions, id)

	return s.saveLocked()
}

// ClaimDocument moves a document into PROCESSING and clears any previous
// error. A document that is already PROCESSING cannot be claimed again, so
// two dispatches for the same id cannot race to conflicting terminal states.
func (s *Store) ClaimDocument(id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if doc.Status == domain.StatusProcessing {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrAlreadyProcessing)
	}

	doc.Status = domain.StatusProcessing
	doc.Error = ""
	doc.ProcessedAt = 0
	doc.UpdatedAt = time.Now().Unix()
	s.data.Documents[id] = doc

	if err := s.saveLocked(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// MarkFailed records a terminal FAILED state with the failure reason. The
// OCR result, if any survived from an earlier run, is left untouched.
func (s *Store) MarkFailed(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	doc.Status = domain.StatusFailed
	doc.Error = reason
	doc.ProcessedAt = 0
	doc.UpdatedAt = time.Now().Unix()
	s.data.Documents[id] = doc

	return s.saveLocked()
}

// UpsertOcrResultAndMarkDone stores (or replaces) the document's OCR result
// and marks the document DONE in a single save, so the status change and the
// result are never visible independently.
func (s *Store) UpsertOcrResultAndMarkDone(id string, res domain.OcrResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	res.DocID = id
	now := time.Now().Unix()
	doc.Status = domain.StatusDone
	doc.Error = ""
	doc.ProcessedAt = now
	doc.UpdatedAt = now

	s.data.OcrResults[id] = res
	s.data.Documents[id] = doc

	return s.saveLocked()
}

func (s *Store) GetOcrResult(docID string) (domain.OcrResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.data.OcrResults[docID]
	if !ok {
		return domain.OcrResult{}, fmt.Errorf("ocr result for %s: %w", docID, domain.ErrNotFound)
	}
	return res, nil
}

// Interactions -----------------------------------------------------------

func (s *Store) AppendInteraction(inter domain.LlmInteraction) (domain.LlmInteraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Documents[inter.DocID]; !ok {
		return domain.LlmInteraction{}, fmt.Errorf("document %s: %w", inter.DocID, domain.ErrNotFound)
	}

	if inter.ID == "" {
		inter.ID = uuid.NewString()
	}
	inter.CreatedAt = time.Now().Unix()
	s.data.Interactions[inter.DocID] = append(s.data.Interactions[inter.DocID], inter)

	if err := s.saveLocked(); err != nil {
		return domain.LlmInteraction{}, err
	}
	return inter, nil
}

// ListInteractions returns the document's interactions in creation order.
func (s *Store) ListInteractions(docID string) []domain.LlmInteraction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inters := make([]domain.LlmInteraction, len(s.data.Interactions[docID]))
	copy(inters, s.data.Interactions[docID])
	return inters
}

// Persistence ------------------------------------------------------------

func (s *Store) saveLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "meta-*.json")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode meta: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp meta: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace meta file: %w", err)
	}

	return nil
}

func (s *Store) ensureMaps() {
	if s.data.Users == nil {
		s.data.Users = map[string]domain.User{}
	}
	if s.data.Documents == nil {
		s.data.Documents = map[string]domain.Document{}
	}
	if s.data.OcrResults == nil {
		s.data.OcrResults = map[string]domain.OcrResult{}
	}
	if s.data.Interactions == nil {
		s.data.Interactions = map[string][]domain.LlmInteraction{}
	}
}
