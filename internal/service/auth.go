package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirill483/auth-notify/internal/model"
	"github.com/kirill483/auth-notify/internal/oauth"
	"github.com/kirill483/auth-notify/internal/password"
	"github.com/kirill483/auth-notify/internal/pkg/logger"
	"github.com/kirill483/auth-notify/internal/pkg/serr"
	"github.com/kirill483/auth-notify/internal/store"
	"github.com/kirill483/auth-notify/internal/token"
)

// tokenIssuer defines the interface for issuing and validating tokens
type tokenIssuer interface {
	IssuePair(subject string, role model.Role) (token.Pair, error)
	IssueAccess(subject string, role model.Role) (string, error)
	ValidateAccess(raw string) (token.Claims, error)
	ValidateRefresh(raw string) (token.RefreshClaims, error)
}

type passwordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// federation drives the external OAuth login
type federation interface {
	AuthorizationURL() string
	Complete(ctx context.Context, code string) (oauth.Attempt, error)
}

// publisher hands channel resolution requests to the notifier
type publisher interface {
	Publish(ctx context.Context, body string) error
}

// Auth handles credential and federated authentication, token management and
// account linking
type Auth struct {
	store     store.Store
	tokens    tokenIssuer
	passwords passwordHasher
	oauth     federation
	queue     publisher
}

// AuthOption defines a functional option for configuring the Auth service
type AuthOption func(*Auth) *Auth

func WithStore(st store.Store) AuthOption {
	return func(s *Auth) *Auth {
		s.store = st
		return s
	}
}

func WithTokens(iss tokenIssuer) AuthOption {
	return func(s *Auth) *Auth {
		s.tokens = iss
		return s
	}
}

func WithPasswords(h passwordHasher) AuthOption {
	return func(s *Auth) *Auth {
		s.passwords = h
		return s
	}
}

func WithFederation(f federation) AuthOption {
	return func(s *Auth) *Auth {
		s.oauth = f
		return s
	}
}

func WithPublisher(p publisher) AuthOption {
	return func(s *Auth) *Auth {
		s.queue = p
		return s
	}
}

// NewAuth creates a new Auth service with the provided options
func NewAuth(opts ...AuthOption) *Auth {
	s := &Auth{}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.store == nil {
		panic("store is required")
	}

	if s.tokens == nil {
		panic("token issuer is required")
	}

	if s.passwords == nil {
		panic("password hasher is required")
	}

	if s.oauth == nil {
		panic("oauth federation is required")
	}

	if s.queue == nil {
		panic("publisher is required")
	}

	return s
}

type RegisterRequest struct {
	Email    string
	Password string
}

// Register creates a password identity. It does not log the user in.
func (s *Auth) Register(ctx context.Context, r RegisterRequest) error {
	email := strings.TrimSpace(r.Email)
	if email == "" || r.Password == "" {
		return serr.NewServiceError(ErrBadRequest, http.StatusBadRequest, "email and password are required")
	}

	hash, err := s.passwords.Hash(r.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return serr.NewServiceError(fmt.Errorf("%w: %w", ErrBadRequest, err), http.StatusBadRequest, "password too long")
		}

		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.store.CreateUser(ctx, store.CreateUserRequest{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			sErr := serr.NewServiceError(fmt.Errorf("%w: %w", ErrIdentityExists, err), http.StatusConflict, "email already registered")
			sErr.Env["email"] = email
			return sErr
		}

		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

type LoginRequest struct {
	Email    string
	Password string
}

// Login verifies the password and records the login. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Auth) Login(ctx context.Context, r LoginRequest) (token.Pair, error) {
	usr, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(r.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return token.Pair{}, unauthorized(ErrInvalidCredentials, "Invalid credentials")
		}

		return token.Pair{}, fmt.Errorf("get user: %w", err)
	}

	if !s.passwords.Verify(usr.PasswordHash, r.Password) {
		return token.Pair{}, unauthorized(ErrInvalidCredentials, "Invalid credentials")
	}

	return s.completeLogin(ctx, usr)
}

// Refresh issues a new access token carrying the subject's current role.
func (s *Auth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return "", tokenError(err, "invalid refresh token")
	}

	usr, err := s.store.GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", unauthorized(fmt.Errorf("%w: %w", ErrIdentityNotFound, err), "invalid user identity")
		}

		return "", fmt.Errorf("get user: %w", err)
	}

	at, err := s.tokens.IssueAccess(usr.Email, usr.Role)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}

	return at, nil
}

// Authenticate validates an access token presented as a bearer credential.
func (s *Auth) Authenticate(raw string) (token.Claims, error) {
	claims, err := s.tokens.ValidateAccess(raw)
	if err != nil {
		return token.Claims{}, tokenError(err, "could not validate credentials")
	}

	return claims, nil
}

// MyLoginHistory lists the caller's own login events.
func (s *Auth) MyLoginHistory(ctx context.Context, caller token.Claims) ([]model.LoginEvent, error) {
	usr, err := s.store.GetUserByEmail(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, serr.NewServiceError(fmt.Errorf("%w: %w", ErrIdentityNotFound, err), http.StatusNotFound, "User not found")
		}

		return nil, fmt.Errorf("get user: %w", err)
	}

	events, err := s.store.GetLoginHistory(ctx, usr.ID)
	if err != nil {
		return nil, fmt.Errorf("get login history: %w", err)
	}

	return events, nil
}

// UsersLoginHistory lists the login events of any user. The caller's role is read
// from the store, and a non-admin is refused before the query is looked at.
func (s *Auth) UsersLoginHistory(ctx context.Context, caller token.Claims, rawUserID string) ([]model.LoginEvent, error) {
	usr, err := s.store.GetUserByEmail(ctx, caller.Subject)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err != nil || usr.Role != model.RoleAdmin {
		sErr := serr.NewServiceError(ErrPermissionDenied, http.StatusForbidden, "Admin access required")
		sErr.Env["subject"] = caller.Subject
		return nil, sErr
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(rawUserID), 10, 64)
	if err != nil {
		return nil, serr.NewServiceError(fmt.Errorf("%w: %w", ErrBadRequest, err), http.StatusBadRequest, "q must be a user id")
	}

	events, err := s.store.GetLoginHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get login history: %w", err)
	}

	return events, nil
}

// LoginURL returns the external provider's consent page.
func (s *Auth) LoginURL() string {
	return s.oauth.AuthorizationURL()
}

// AuthCallback completes a federated login and issues tokens for the local
// identity, keeping its role.
func (s *Auth) AuthCallback(ctx context.Context, code string) (token.Pair, error) {
	if code == "" {
		return token.Pair{}, serr.NewServiceError(ErrBadRequest, http.StatusBadRequest, "code is required")
	}

	attempt, err := s.oauth.Complete(ctx, code)
	if err != nil {
		if errors.Is(err, oauth.ErrFederationFailure) {
			sErr := serr.NewServiceError(err, http.StatusBadGateway, "oauth federation failed")
			sErr.Env["stage"] = string(attempt.Stage)
			return token.Pair{}, sErr
		}

		return token.Pair{}, fmt.Errorf("complete federation: %w", err)
	}

	return s.completeLogin(ctx, attempt.User)
}

type LinkTelegramRequest struct {
	TelegramUsername string
}

// LinkTelegram stores the caller's Telegram handle, without a leading "@", and
// asks the notifier to greet it. The lookup and the update share a transaction.
// The link stays even if the request cannot be published.
func (s *Auth) LinkTelegram(ctx context.Context, caller token.Claims, r LinkTelegramRequest) error {
	handle := model.NormalizeTelegramHandle(r.TelegramUsername)
	if handle == "" || strings.Contains(handle, ",") {
		return serr.NewServiceError(ErrBadRequest, http.StatusBadRequest, "invalid telegram username")
	}

	var usr model.User
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		usr, err = tx.GetUserByEmail(ctx, caller.Subject)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		return tx.SetTelegramUsername(ctx, store.SetTelegramUsernameRequest{
			Email:            usr.Email,
			TelegramUsername: handle,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return serr.NewServiceError(fmt.Errorf("%w: %w", ErrIdentityNotFound, err), http.StatusNotFound, "User not found")
		case errors.Is(err, store.ErrExists):
			sErr := serr.NewServiceError(fmt.Errorf("%w: %w", ErrHandleTaken, err), http.StatusConflict, "telegram username already linked")
			sErr.Env["telegram_username"] = handle
			return sErr
		default:
			return fmt.Errorf("link telegram username: %w", err)
		}
	}

	req := model.ChannelResolutionRequest{
		UserID: strconv.FormatInt(usr.ID, 10),
		Handle: handle,
	}
	if err := s.queue.Publish(ctx, req.String()); err != nil {
		logger.FromContext(ctx).Error("failed to publish channel resolution request",
			"error", err,
			"user_id", usr.ID,
			"telegram_username", handle,
		)
	}

	return nil
}

func (s *Auth) completeLogin(ctx context.Context, usr model.User) (token.Pair, error) {
	if _, err := s.store.CreateLoginEvent(ctx, usr.ID); err != nil {
		return token.Pair{}, fmt.Errorf("record login: %w", err)
	}

	pair, err := s.tokens.IssuePair(usr.Email, usr.Role)
	if err != nil {
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}

	return pair, nil
}
