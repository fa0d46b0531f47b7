package api

import (
	"context"
	"errors"
	"time"

	"github.com/soaringjerry/questionflow/internal/models"
	"github.com/soaringjerry/questionflow/internal/services"
)

type authStoreAdapter struct {
	store Store
}

func newAuthStoreAdapter(store Store) services.AuthStore {
	return &authStoreAdapter{store: store}
}

func (a *authStoreAdapter) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	u, err := a.store.FindUserByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	return toServiceUser(u), nil
}

func (a *authStoreAdapter) GetUser(ctx context.Context, id string) (*services.User, error) {
	u, err := a.store.GetUser(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return toServiceUser(u), nil
}

func (a *authStoreAdapter) AddUser(ctx context.Context, u *services.User) error {
	if u == nil {
		return services.NewInvalidError("user required")
	}
	err := a.store.AddUser(ctx, &models.User{ID: u.ID, Email: u.Email, Name: u.Name, PassHash: u.PassHash, CreatedAt: u.CreatedAt})
	if errors.Is(err, ErrDuplicate) {
		return services.NewInvalidError("Email already registered")
	}
	return err
}

func (a *authStoreAdapter) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return a.store.TouchLastLogin(ctx, id, at)
}

func toServiceUser(u *models.User) *services.User {
	out := &services.User{ID: u.ID, Email: u.Email, Name: u.Name, PassHash: u.PassHash, CreatedAt: u.CreatedAt}
	if u.LastLogin != nil {
		out.LastLogin = *u.LastLogin
	}
	return out
}

var _ services.AuthStore = (*authStoreAdapter)(nil)
