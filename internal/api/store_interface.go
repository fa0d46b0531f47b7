package api

import (
	"context"
	"errors"
	"time"

	"github.com/soaringjerry/questionflow/internal/models"
)

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("duplicate record")

type Store interface {
	ReplaceQuestions(ctx context.Context, qs []*models.Question) error
	ListQuestions(ctx context.Context) ([]*models.Question, error)
	CountQuestions(ctx context.Context) (int, error)

	AddUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	GetProgress(ctx context.Context, userID string) (*models.Progress, error)
	ListAnswers(ctx context.Context, userID string) ([]*models.Answer, error)
	// WithUserTx serializes read-modify-write cycles on one user's progress
	// and answers. Nothing is persisted if fn returns an error.
	WithUserTx(ctx context.Context, userID string, fn func(tx UserTx) error) error
}

// UserTx is scoped to the user passed to WithUserTx.
type UserTx interface {
	GetProgress() (*models.Progress, error)
	SaveProgress(p *models.Progress) error
	UpsertAnswer(a *models.Answer) error
	DeleteAnswers() error
}

var _ Store = (*memoryStore)(nil)
