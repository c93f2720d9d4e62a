// Package notify provides host notification sinks for the keyring.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
)

// Multi fans a notification out to every sink. All sinks are called even
// when one fails; the failures are joined.
type Multi []keyring.Notifier

var _ keyring.Notifier = Multi(nil)

func (m Multi) each(fn func(keyring.Notifier) error) error {
	var errList []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (m Multi) AccountCreated(ctx context.Context, a keyring.Account) error {
	return m.each(func(n keyring.Notifier) error { return n.AccountCreated(ctx, a) })
}

func (m Multi) AccountUpdated(ctx context.Context, a keyring.Account) error {
	return m.each(func(n keyring.Notifier) error { return n.AccountUpdated(ctx, a) })
}

func (m Multi) AccountDeleted(ctx context.Context, a keyring.Account) error {
	return m.each(func(n keyring.Notifier) error { return n.AccountDeleted(ctx, a) })
}

func (m Multi) UserOperationSent(ctx context.Context, s keyring.OperationSent) error {
	return m.each(func(n keyring.Notifier) error { return n.UserOperationSent(ctx, s) })
}

// Log writes every notification to a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

var _ keyring.Notifier = (*Log)(nil)

// NewLog returns a sink on the global logger with a "sink" field.
func NewLog() *Log {
	return NewLogWith(log.Logger)
}

func NewLogWith(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("sink", "host").Logger()}
}

func (l *Log) account(event string, a keyring.Account) error {
	l.logger.Info().
		Str("event", event).
		Str("account_id", a.ID).
		Str("name", a.Name).
		Str("address", a.Address).
		Msg("keyring event")
	return nil
}

func (l *Log) AccountCreated(_ context.Context, a keyring.Account) error {
	return l.account(EventAccountCreated, a)
}

func (l *Log) AccountUpdated(_ context.Context, a keyring.Account) error {
	return l.account(EventAccountUpdated, a)
}

func (l *Log) AccountDeleted(_ context.Context, a keyring.Account) error {
	return l.account(EventAccountDeleted, a)
}

func (l *Log) UserOperationSent(_ context.Context, s keyring.OperationSent) error {
	l.logger.Info().
		Str("event", EventUserOperationSent).
		Str("request_id", s.RequestID).
		Str("account_id", s.AccountID).
		Str("sender", s.Sender).
		Uint64("chain_id", s.ChainID).
		Str("user_op_hash", s.UserOpHash).
		Msg("keyring event")
	return nil
}
