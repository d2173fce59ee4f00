package services

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/storage"
)

type UsersService struct {
	store *storage.Store
}

func NewUsersService(store *storage.Store) *UsersService {
	return &UsersService{store: store}
}

// UserUpdate carries optional field changes; nil means "leave unchanged".
type UserUpdate struct {
	Email    *string
	Name     *string
	Password *string
	Role     *domain.Role
}

// Create is the admin path: unlike public registration it may set a role.
func (s *UsersService) Create(email, name, password string, role domain.Role) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.store.CreateUser(domain.User{
		Email:        strings.TrimSpace(strings.ToLower(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         role,
	})
}

func (s *UsersService) List() []domain.User {
	return s.store.ListUsers()
}

func (s *UsersService) Get(id string, actor domain.Identity) (domain.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrForbidden)
	}
	return s.store.GetUser(id)
}

func (s *UsersService) Update(id string, upd UserUpdate, actor domain.Identity) (domain.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrForbidden)
	}
	if upd.Role != nil && !actor.IsAdmin() {
		return domain.User{}, fmt.Errorf("role change: %w", domain.ErrForbidden)
	}

	user, err := s.store.GetUser(id)
	if err != nil {
		return domain.User{}, err
	}

	if upd.Email != nil {
		user.Email = strings.TrimSpace(strings.ToLower(*upd.Email))
	}
	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if upd.Role != nil {
		user.Role = *upd.Role
	}

	return s.store.UpdateUser(user)
}

func (s *UsersService) Delete(id string) error {
	return s.store.DeleteUser(id)
}
