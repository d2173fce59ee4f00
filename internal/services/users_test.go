package services

import (
	"errors"
	"testing"

	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/storage"
)

func newUsersService(t *testing.T) (*UsersService, *storage.Store) {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewUsersService(store), store
}

func TestCreateUserMaySetRole(t *testing.T) {
	svc, _ := newUsersService(t)

	user, err := svc.Create("admin@teste.com", "Admin", "Senha123!", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected ADMIN, got %s", user.Role)
	}
}

func TestGetUserSelfOrAdmin(t *testing.T) {
	svc, _ := newUsersService(t)

	user, err := svc.Create("maria@teste.com", "Maria", "Senha123!", domain.RoleUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	self := domain.Identity{UserID: user.ID, Role: domain.RoleUser}
	if _, err := svc.Get(user.ID, self); err != nil {
		t.Fatalf("self read: %v", err)
	}

	admin := domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
	if _, err := svc.Get(user.ID, admin); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	other := domain.Identity{UserID: "intruso", Role: domain.RoleUser}
	if _, err := svc.Get(user.ID, other); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	svc, _ := newUsersService(t)

	user, err := svc.Create("maria@teste.com", "Maria", "Senha123!", domain.RoleUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	admin := domain.RoleAdmin
	self := domain.Identity{UserID: user.ID, Role: domain.RoleUser}
	if _, err := svc.Update(user.ID, UserUpdate{Role: &admin}, self); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for self role change, got %v", err)
	}

	adminActor := domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
	updated, err := svc.Update(user.ID, UserUpdate{Role: &admin}, adminActor)
	if err != nil {
		t.Fatalf("admin role change: %v", err)
	}
	if updated.Role != domain.RoleAdmin {
		t.Fatalf("expected ADMIN after update, got %s", updated.Role)
	}
}

func TestUpdateChangesOnlyProvidedFields(t *testing.T) {
	svc, _ := newUsersService(t)

	user, err := svc.Create("maria@teste.com", "Maria", "Senha123!", domain.RoleUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Maria Silva"
	self := domain.Identity{UserID: user.ID, Role: domain.RoleUser}
	updated, err := svc.Update(user.ID, UserUpdate{Name: &name}, self)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Maria Silva" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if updated.Email != "maria@teste.com" {
		t.Fatalf("email must stay unchanged, got %q", updated.Email)
	}
}
