package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AddUser(ctx context.Context, u *User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type RegisterRequest struct {
	Email                string
	Name                 string
	Password             string
	PasswordConfirmation string
}

type AuthResult struct {
	Token     string
	TokenType string
	UserID    string
}

func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewInvalidError("invalid email address")
	}
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	if req.Password != req.PasswordConfirmation {
		return nil, NewInvalidError("Passwords do not match")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewInvalidError("Email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: s.idGen("u", 12), Email: email, Name: name, PassHash: hash, CreatedAt: s.now()}
	if err := s.store.AddUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("Incorrect email or password")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("Incorrect email or password")
	}
	if err := s.store.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Refresh issues a new token for an already authenticated user.
func (s *AuthService) Refresh(ctx context.Context, userID string) (*AuthResult, error) {
	u, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("Could not validate credentials")
	}
	return u, nil
}

func (s *AuthService) issue(u *User) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, TokenType: "bearer", UserID: u.ID}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
