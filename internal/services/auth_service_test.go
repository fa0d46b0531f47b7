package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type authStubStore struct {
	users  map[string]*User
	logins map[string]time.Time
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}, logins: map[string]time.Time{}}
}

func (s *authStubStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) GetUser(_ context.Context, id string) (*User, error) {
	for _, u := range s.users {
		if u.ID == id {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *authStubStore) AddUser(_ context.Context, u *User) error {
	if _, ok := s.users[u.Email]; ok {
		return errors.New("duplicate user")
	}
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func (s *authStubStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.logins[id] = at
	return nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "token:" + uid + ":" + email, nil
	}, time.Hour)
	svc.now = func() time.Time { return time.Unix(0, 0).UTC() }
	svc.idGen = func(prefix string, n int) string { return prefix + "1234567" }

	u, err := svc.Register(ctx, RegisterRequest{
		Email:                "User@Example.com",
		Name:                 "Ada",
		Password:             "Secret123",
		PasswordConfirmation: "Secret123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if u.ID != "u1234567" || u.Email != "user@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}

	_, err = svc.Register(ctx, RegisterRequest{Email: "user@example.com", Name: "Ada", Password: "x", PasswordConfirmation: "x"})
	if !IsCode(err, ErrorInvalid) || err.Error() != "Email already registered" {
		t.Fatalf("expected rejection of duplicate registration, got %v", err)
	}

	res, err := svc.Login(ctx, "user@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.Token != "token:u1234567:user@example.com" || res.TokenType != "bearer" {
		t.Fatalf("unexpected login result %+v", res)
	}
	if _, ok := store.logins[u.ID]; !ok {
		t.Fatalf("expected last login to be recorded")
	}

	if _, err := svc.Login(ctx, "user@example.com", "wrong"); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "missing@example.com", "Secret123"); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for missing user, got %v", err)
	}

	refreshed, err := svc.Refresh(ctx, u.ID)
	if err != nil || refreshed.Token == "" {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := svc.Refresh(ctx, "u-missing"); !IsCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized refresh for unknown user, got %v", err)
	}
}

func TestAuthValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newAuthStubStore(), func(uid, email string, ttl time.Duration) (string, error) {
		return "tok", nil
	}, 0)
	if svc.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected default ttl, got %v", svc.TokenTTL())
	}

	cases := []RegisterRequest{
		{},
		{Email: "not-an-email", Name: "A", Password: "pw", PasswordConfirmation: "pw"},
		{Email: "a@example.com", Password: "pw", PasswordConfirmation: "pw"},
		{Email: "a@example.com", Name: "A", Password: "pw", PasswordConfirmation: "other"},
	}
	for i, req := range cases {
		if _, err := svc.Register(ctx, req); !IsCode(err, ErrorInvalid) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := svc.Login(ctx, "", ""); !IsCode(err, ErrorInvalid) {
		t.Fatalf("expected validation error on login")
	}
}
