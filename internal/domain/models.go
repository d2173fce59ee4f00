package domain

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the authenticated caller attached to every request.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// Document lifecycle states. A document is created QUEUED, claimed into
// PROCESSING by the orchestrator and ends in exactly one of DONE or FAILED.
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

type Document struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	StoragePath string `json:"storagePath"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ProcessedAt int64  `json:"processedAt,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// OcrResult holds the extracted text for a document. At most one result
// exists per document; reprocessing replaces it.
type OcrResult struct {
	DocID      string   `json:"docId"`
	Text       string   `json:"text"`
	Language   string   `json:"language,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// LlmInteraction is an append-only question/answer record; creation order is
// the canonical conversation order.
type LlmInteraction struct {
	ID        string `json:"id"`
	DocID     string `json:"docId"`
	UserID    string `json:"userId"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt int64  `json:"createdAt"`
}
