package ledger

import (
	"context"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// Ledger persists and queries run events.
type Ledger interface {
	// Append records an event. A zero Timestamp is set to the current time.
	Append(ctx context.Context, e Event) error

	// ByRun returns the events of one run in insertion order.
	ByRun(ctx context.Context, runID string) ([]Event, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// PublishedTag returns the succeeded publish event for tag, if any.
	PublishedTag(ctx context.Context, tag string) (*Event, bool, error)

	// Close releases the underlying database.
	Close() error
}

// Open returns the ledger described by cfg, or a no-op ledger when disabled.
func Open(cfg config.LedgerConfig) (Ledger, error) {
	if cfg.Disabled || cfg.Path == "" {
		return Nop{}, nil
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, errors.NewError(errors.CategoryLedger, "create ledger directory").
				WithCause(err).
				WithContext("path", cfg.Path).
				Build()
		}
	}
	l, err := NewSQLiteLedger(cfg.Path)
	if err != nil {
		return nil, errors.NewError(errors.CategoryLedger, "open run ledger").
			WithCause(err).
			WithContext("path", cfg.Path).
			Build()
	}
	return l, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Append(context.Context, Event) error            { return nil }
func (Nop) ByRun(context.Context, string) ([]Event, error) { return nil, nil }
func (Nop) Recent(context.Context, int) ([]Event, error)   { return nil, nil }
func (Nop) Close() error                                   { return nil }
func (Nop) PublishedTag(context.Context, string) (*Event, bool, error) {
	return nil, false, nil
}
