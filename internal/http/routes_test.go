package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/llm"
	"github.com/LucasKiller/DocLens/internal/services"
	"github.com/LucasKiller/DocLens/internal/storage"
)

type queueRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (q *queueRecorder) Enqueue(docID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, docID)
}

func (q *queueRecorder) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type testEnv struct {
	engine *gin.Engine
	store  *storage.Store
	auth   *services.AuthService
	queue  *queueRecorder
}

// setupTestServer wires the API against a throwaway data dir, a recording
// dispatcher and the mock answerer, so no OCR engine or LLM is needed.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.Config{
		Port:           "8080",
		DataDir:        dir,
		MaxUploadBytes: 1 << 20,
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		OCRLangs:       "eng+por",
		LLMMaxTokens:   400,
	}

	store, err := storage.NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	files, err := storage.NewFileManager(dir, cfg.MaxUploadBytes)
	if err != nil {
		t.Fatalf("new file manager: %v", err)
	}

	queue := &queueRecorder{}
	auth := services.NewAuthService(cfg, store)
	users := services.NewUsersService(store)
	docs := services.NewDocumentsService(store, files, &llm.MockAnswerer{Reason: "test"}, queue)
	report := services.NewReportService()

	engine := gin.New()
	engine.Use(gin.Recovery())
	registerRoutes(engine, NewAPI(cfg, store, files, auth, users, docs, report))

	return &testEnv{engine: engine, store: store, auth: auth, queue: queue}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func (env *testEnv) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	if payload != nil {
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	return env.do(t, method, path, token, body, "application/json")
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func registerTestUser(t *testing.T, env *testEnv, email string) string {
	t.Helper()

	w := env.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"name":     "Usuário de Teste",
		"password": "Senha123!",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, w, &resp)
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in %s", w.Body.String())
	}
	return resp.AccessToken
}

func adminToken(t *testing.T, env *testEnv) string {
	t.Helper()

	admin, err := env.store.CreateUser(domain.User{
		Email: "admin@teste.com",
		Name:  "Admin",
		Role:  domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	token, err := env.auth.SignToken(admin)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// pngBytes is the PNG signature plus padding, enough for content sniffing.
func pngBytes() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func uploadDocument(t *testing.T, env *testEnv, token string) domain.Document {
	t.Helper()

	body, contentType := multipartUpload(t, "recibo.png", pngBytes())
	w := env.do(t, http.MethodPost, "/api/documents", token, body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Document domain.Document `json:"document"`
	}
	decodeBody(t, w, &resp)
	return resp.Document
}

func TestHealthHandler(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/api/health", "", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := setupTestServer(t)
	registerTestUser(t, env, "maria@teste.com")

	w := env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "maria@teste.com",
		"password": "Senha123!",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, w, &login)

	me := env.do(t, http.MethodGet, "/api/auth/me", login.AccessToken, nil, "")
	if me.Code != http.StatusOK {
		t.Fatalf("me returned %d: %s", me.Code, me.Body.String())
	}
	var identity domain.Identity
	decodeBody(t, me, &identity)
	if identity.Email != "maria@teste.com" || identity.Role != domain.RoleUser {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := setupTestServer(t)
	registerTestUser(t, env, "maria@teste.com")

	w := env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "maria@teste.com",
		"password": "errada",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDocumentsRequireAuth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/api/documents", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestUploadQueuesDocument(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")

	doc := uploadDocument(t, env, token)

	if doc.Status != domain.StatusQueued {
		t.Fatalf("expected QUEUED document, got %s", doc.Status)
	}
	if doc.MimeType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %s", doc.MimeType)
	}
	if queued := env.queue.queued(); len(queued) != 1 || queued[0] != doc.ID {
		t.Fatalf("expected document enqueued once, got %v", queued)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/documents", token, body, writer.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")

	body, contentType := multipartUpload(t, "notas.txt", []byte("texto puro, não é imagem"))
	w := env.do(t, http.MethodPost, "/api/documents", token, body, contentType)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAskBeforeDoneIsForbidden(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/documents/%s/ask", doc.ID), token, map[string]string{
		"question": "Qual o total?",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAskAfterDoneReturnsInteraction(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	if err := env.store.UpsertOcrResultAndMarkDone(doc.ID, domain.OcrResult{Text: "Total: R$ 42", Language: "eng"}); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/documents/%s/ask", doc.ID), token, map[string]string{
		"question": "Qual o total?",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var inter domain.LlmInteraction
	decodeBody(t, w, &inter)
	if !strings.Contains(inter.Answer, "MOCK") {
		t.Fatalf("expected mock answer, got %q", inter.Answer)
	}
	if inter.Question != "Qual o total?" {
		t.Fatalf("unexpected question %q", inter.Question)
	}
}

func TestAskRejectsShortQuestion(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/documents/%s/ask", doc.ID), token, map[string]string{
		"question": "a?",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDocumentStatusEndpoint(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	if err := env.store.MarkFailed(doc.ID, "arquivo ilegível"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/documents/%s/status", doc.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status services.DocumentStatus
	decodeBody(t, w, &status)
	if status.Status != domain.StatusFailed || status.Error != "arquivo ilegível" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestDownloadTranscript(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	if err := env.store.UpsertOcrResultAndMarkDone(doc.ID, domain.OcrResult{Text: "Conteúdo extraído"}); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/documents/%s/download", doc.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "document-"+doc.ID+".txt") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), "Conteúdo extraído") {
		t.Fatalf("transcript missing OCR text:\n%s", w.Body.String())
	}
}

func TestRetryEndpointQueuesAgain(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	w := env.doJSON(t, http.MethodPost, fmt.Sprintf("/api/documents/%s/retry", doc.ID), token, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if queued := env.queue.queued(); len(queued) != 2 {
		t.Fatalf("expected upload + retry enqueues, got %v", queued)
	}
}

func TestDeleteDocument(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, token)

	w := env.do(t, http.MethodDelete, "/api/documents/"+doc.ID, token, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	again := env.do(t, http.MethodGet, "/api/documents/"+doc.ID, token, nil, "")
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", again.Code)
	}
}

func TestOwnersCannotSeeForeignDocuments(t *testing.T) {
	env := setupTestServer(t)
	owner := registerTestUser(t, env, "maria@teste.com")
	doc := uploadDocument(t, env, owner)

	other := registerTestUser(t, env, "joao@teste.com")

	w := env.do(t, http.MethodGet, "/api/documents/"+doc.ID, other, nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	list := env.do(t, http.MethodGet, "/api/documents", other, nil, "")
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	var docs []domain.Document
	decodeBody(t, list, &docs)
	if len(docs) != 0 {
		t.Fatalf("expected empty list for other user, got %d documents", len(docs))
	}
}

func TestUsersListRequiresAdmin(t *testing.T) {
	env := setupTestServer(t)
	token := registerTestUser(t, env, "maria@teste.com")

	w := env.do(t, http.MethodGet, "/api/users", token, nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	admin := adminToken(t, env)
	ok := env.do(t, http.MethodGet, "/api/users", admin, nil, "")
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", ok.Code, ok.Body.String())
	}
}

func TestAdminCreatesUserWithRole(t *testing.T) {
	env := setupTestServer(t)
	admin := adminToken(t, env)

	w := env.doJSON(t, http.MethodPost, "/api/users", admin, map[string]string{
		"email":    "novo@teste.com",
		"name":     "Novo Admin",
		"password": "Senha123!",
		"role":     "ADMIN",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var user domain.User
	decodeBody(t, w, &user)
	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected ADMIN role, got %s", user.Role)
	}
}
