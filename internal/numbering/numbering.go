// Package numbering mints human-readable document numbers such as
// QT-2026-0007, one strictly increasing sequence per business, document kind
// and year.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Kind identifies the numbered document family.
type Kind string

const (
	KindQuote   Kind = "QUOTE"
	KindInvoice Kind = "INVOICE"
)

var (
	// ErrInvalidPrefix indicates an empty or malformed prefix in business settings.
	ErrInvalidPrefix = fmt.Errorf("%w: numbering prefix must be 1-10 letters or digits", shared.ErrValidation)
	// ErrInvalidYear indicates a year outside 1000..9999.
	ErrInvalidYear = fmt.Errorf("%w: numbering year out of range", shared.ErrValidation)
	// ErrNumberTaken signals a registry collision; it wraps shared.ErrTransient
	// in the repository so the surrounding transaction is retried.
	ErrNumberTaken = errors.New("numbering: number already issued")
)

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// Store is the transactional persistence used by Numberer.
type Store interface {
	// NextSequence atomically increments and returns the counter for the key.
	NextSequence(ctx context.Context, businessID int64, kind Kind, year int) (int64, error)
	// Register records the issued number under the unique sequence key.
	Register(ctx context.Context, businessID int64, kind Kind, year int, seq int64, number string) error
}

// Numberer formats sequences from Store.
type Numberer struct {
	store Store
}

// New builds a Numberer bound to store, typically a transaction-scoped store.
func New(store Store) *Numberer {
	return &Numberer{store: store}
}

// Next mints the next number for businessID/kind/year using prefix.
func (n *Numberer) Next(ctx context.Context, businessID int64, kind Kind, year int, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	seq, err := n.store.NextSequence(ctx, businessID, kind, year)
	if err != nil {
		return "", fmt.Errorf("numbering: next sequence: %w", err)
	}
	number := Format(prefix, year, seq)
	if err := n.store.Register(ctx, businessID, kind, year, seq, number); err != nil {
		return "", fmt.Errorf("numbering: register %s: %w", number, err)
	}
	return number, nil
}

// Format renders PREFIX-YYYY-NNNN. Sequences past 9999 keep growing in width.
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}
