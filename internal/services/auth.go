package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/domain"
	"github.com/LucasKiller/DocLens/internal/storage"
)

type tokenClaims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	store  *storage.Store
	secret []byte
	ttl    time.Duration
}

func NewAuthService(cfg config.Config, store *storage.Store) *AuthService {
	return &AuthService{
		store:  store,
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}
}

// Register creates a user with role USER (public registration can never
// grant ADMIN) and returns a signed token.
func (s *AuthService) Register(email, name, password string) (string, domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(domain.User{
		Email:        strings.TrimSpace(strings.ToLower(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	})
	if err != nil {
		return "", domain.User{}, err
	}

	token, err := s.SignToken(user)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

func (s *AuthService) Login(email, password string) (string, domain.User, error) {
	user, err := s.store.FindUserByEmail(strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}

	token, err := s.SignToken(user)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

func (s *AuthService) SignToken(user domain.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a bearer token and returns the caller identity.
func (s *AuthService) Verify(tokenString string) (domain.Identity, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("invalid token: %w", domain.ErrInvalidCredentials)
	}

	return domain.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
