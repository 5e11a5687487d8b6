package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the local identity. Email is the token subject.
type User struct {
	ID               int64
	Email            string
	PasswordHash     string
	TelegramUsername string
	Role             Role
}

// Federated reports whether the user can only sign in through the OAuth provider.
func (u User) Federated() bool {
	return u.PasswordHash == ""
}

type LoginEvent struct {
	ID        int64
	UserID    int64
	Timestamp time.Time
}

var ErrMalformedRequest = errors.New("malformed channel resolution request")

// ChannelResolutionRequest asks the notifier to greet the owner of a Telegram handle.
// On the wire it is "<userId>,<handle>".
type ChannelResolutionRequest struct {
	UserID string
	Handle string
}

func (r ChannelResolutionRequest) String() string {
	return r.UserID + "," + r.Handle
}

// NormalizeTelegramHandle trims whitespace and strips a single leading "@", so
// "@alice" and "alice" name the same account.
func NormalizeTelegramHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.TrimSpace(h)
}

func ParseChannelResolutionRequest(body string) (ChannelResolutionRequest, error) {
	parts := strings.Split(strings.TrimSpace(body), ",")
	if len(parts) != 2 {
		return ChannelResolutionRequest{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformedRequest, len(parts))
	}

	req := ChannelResolutionRequest{
		UserID: strings.TrimSpace(parts[0]),
		Handle: strings.TrimSpace(parts[1]),
	}
	if req.UserID == "" || req.Handle == "" {
		return ChannelResolutionRequest{}, fmt.Errorf("%w: empty field", ErrMalformedRequest)
	}

	return req, nil
}
