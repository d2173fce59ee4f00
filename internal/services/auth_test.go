package services

import (
	"errors"
	"testing"
	"time"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/storage"
)

func newAuthService(t *testing.T) (*AuthService, *storage.Store) {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cfg := config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	return NewAuthService(cfg, store), store
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _ := newAuthService(t)

	token, user, err := auth.Register("  Maria@Teste.com ", " Maria ", "Senha123!")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if user.Email != "maria@teste.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("registration must never grant %s, got %s", domain.RoleAdmin, user.Role)
	}
	if user.PasswordHash == "Senha123!" {
		t.Fatalf("password must not be stored in clear")
	}

	loginToken, loggedIn, err := auth.Login("maria@teste.com", "Senha123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginToken == "" || loggedIn.ID != user.ID {
		t.Fatalf("expected login to return the registered user")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth, _ := newAuthService(t)

	if _, _, err := auth.Register("maria@teste.com", "Maria", "Senha123!"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := auth.Login("maria@teste.com", "errada")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	auth, _ := newAuthService(t)

	_, _, err := auth.Login("ninguem@teste.com", "tanto-faz")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyReturnsIdentity(t *testing.T) {
	auth, _ := newAuthService(t)

	token, user, err := auth.Register("maria@teste.com", "Maria", "Senha123!")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	identity, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != user.ID {
		t.Fatalf("expected subject %q, got %q", user.ID, identity.UserID)
	}
	if identity.Email != "maria@teste.com" {
		t.Fatalf("unexpected email %q", identity.Email)
	}
	if identity.Role != domain.RoleUser {
		t.Fatalf("unexpected role %q", identity.Role)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	auth, _ := newAuthService(t)

	if _, err := auth.Verify("not-a-token"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	auth, _ := newAuthService(t)

	otherStore, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	other := NewAuthService(config.Config{JWTSecret: "another-secret", TokenTTL: time.Hour}, otherStore)

	token, _, err := other.Register("maria@teste.com", "Maria", "Senha123!")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := auth.Verify(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
