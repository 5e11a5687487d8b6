// Package channel holds the provider-neutral vocabulary of outbound messaging.
package channel

import "errors"

var (
	// ErrNotFound means the provider does not know the requested identity.
	ErrNotFound = errors.New("channel identity not found")
	// ErrRejected means the provider refused to deliver, e.g. the user blocked the bot.
	ErrRejected = errors.New("channel rejected message")
	// ErrTransport covers network failures, timeouts, rate limits and provider outages.
	// Callers are expected to retry.
	ErrTransport = errors.New("channel transport failure")
)

// Activity is one recent inbound message seen by the bot.
type Activity struct {
	Username string
	ChatID   int64
}
