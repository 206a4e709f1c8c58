package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lekha.app/internal/ids"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)

const defaultTokenTTL = 24 * time.Hour

// User is a registered account holder.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserStore describes persistence for registered users.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	FindUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// Service handles registration, login and bearer-token authentication.
type Service struct {
	store    UserStore
	tokenTTL time.Duration
}

// NewService wires a user store. ttl <= 0 falls back to the default.
func NewService(store UserStore, ttl time.Duration) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: user store is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{store: store, tokenTTL: ttl}, nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	u := User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and mints a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", User{}, ErrUnauthorized
		}
		return "", User{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return "", User{}, ErrUnauthorized
	}
	token, err := GenerateToken(u.ID, u.Email, s.tokenTTL)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// AuthenticateToken validates a bearer token and resolves the identity
// it carries against the user store.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	u, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	return Identity{UserID: u.ID, Email: u.Email}, nil
}

// InMemoryUsers is a map-backed UserStore for development and tests.
type InMemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

var _ UserStore = (*InMemoryUsers)(nil)

func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *InMemoryUsers) CreateUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *InMemoryUsers) FindUser(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *InMemoryUsers) FindUserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.byID[id], nil
}
