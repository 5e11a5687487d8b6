// Package oauth federates logins through the Yandex authorization-code flow.
//
// The authorization URL carries no state parameter, so the callback cannot tell a
// login the user started from one a third party forged.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirill483/auth-notify/internal/model"
	"github.com/kirill483/auth-notify/internal/store"
)

var ErrFederationFailure = errors.New("oauth federation failed")

// Stage is the furthest point a federation attempt reached.
type Stage string

const (
	StageInitiated      Stage = "initiated"
	StageCodeReceived   Stage = "code_received"
	StageTokenExchanged Stage = "token_exchanged"
	StageProfileFetched Stage = "profile_fetched"
	StageReconciled     Stage = "reconciled"
)

// FederationError reports the stage an attempt had reached when it failed.
// It matches ErrFederationFailure.
type FederationError struct {
	Stage Stage
	Err   error
}

func (e *FederationError) Error() string {
	return fmt.Sprintf("oauth federation failed after %s: %v", e.Stage, e.Err)
}

func (e *FederationError) Unwrap() error {
	return e.Err
}

func (e *FederationError) Is(target error) bool {
	return target == ErrFederationFailure
}

// Profile is the part of the upstream account the service relies on.
type Profile struct {
	Email string
}

// Attempt is the result of one callback.
type Attempt struct {
	Stage Stage
	User  model.User
}

type identityProvider interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}

type userStore interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, r store.CreateUserRequest) (model.User, error)
}

type Federation struct {
	provider identityProvider
	users    userStore
}

func NewFederation(p identityProvider, users userStore) *Federation {
	return &Federation{provider: p, users: users}
}

func (f *Federation) AuthorizationURL() string {
	return f.provider.AuthorizationURL()
}

// Complete drives an attempt from the received code to a local identity.
func (f *Federation) Complete(ctx context.Context, code string) (Attempt, error) {
	a := Attempt{Stage: StageInitiated}
	if code == "" {
		return a, &FederationError{Stage: a.Stage, Err: errors.New("empty authorization code")}
	}
	a.Stage = StageCodeReceived

	tok, err := f.provider.ExchangeCode(ctx, code)
	if err != nil {
		return a, &FederationError{Stage: a.Stage, Err: err}
	}
	a.Stage = StageTokenExchanged

	prof, err := f.provider.FetchProfile(ctx, tok)
	if err != nil {
		return a, &FederationError{Stage: a.Stage, Err: err}
	}
	a.Stage = StageProfileFetched

	usr, err := f.Reconcile(ctx, prof.Email)
	if err != nil {
		return a, &FederationError{Stage: a.Stage, Err: err}
	}
	a.Stage = StageReconciled
	a.User = usr

	return a, nil
}

// Reconcile returns the identity owning email, creating a passwordless one with
// the user role when there is none. Existing roles are kept.
func (f *Federation) Reconcile(ctx context.Context, email string) (model.User, error) {
	usr, err := f.users.GetUserByEmail(ctx, email)
	if err == nil {
		return usr, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	usr, err = f.users.CreateUser(ctx, store.CreateUserRequest{Email: email, Role: model.RoleUser})
	if errors.Is(err, store.ErrExists) {
		// lost the race to a concurrent callback for the same account
		usr, err = f.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	return usr, nil
}
