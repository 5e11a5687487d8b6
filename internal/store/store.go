package store

import (
	"context"
	"errors"

	"github.com/kirill483/auth-notify/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Store is the repository for identities and their login history.
type Store interface {
	CreateUser(ctx context.Context, r CreateUserRequest) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	SetTelegramUsername(ctx context.Context, r SetTelegramUsernameRequest) error
	CreateLoginEvent(ctx context.Context, userID int64) (model.LoginEvent, error)
	GetLoginHistory(ctx context.Context, userID int64) ([]model.LoginEvent, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type CreateUserRequest struct {
	Email string
	// PasswordHash is empty for federated-only accounts.
	PasswordHash string
	Role         model.Role
}

type SetTelegramUsernameRequest struct {
	Email            string
	TelegramUsername string
}
