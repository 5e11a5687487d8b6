package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the longest password bcrypt accepts, in bytes.
const MaxLength = 72

var ErrTooLong = errors.New("password too long")

// Bcrypt hashes and verifies user passwords.
type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", fmt.Errorf("%w: %d bytes, at most %d allowed", ErrTooLong, len(plain), MaxLength)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %w", ErrTooLong, err)
	}
	if err != nil {
		return "", fmt.Errorf("generate hash: %w", err)
	}

	return string(h), nil
}

// Verify compares in constant time. An empty hash belongs to a federated-only
// account and never matches.
func (b *Bcrypt) Verify(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
