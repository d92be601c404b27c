package shared

import "errors"

// Error classes shared by every billing module. Module errors wrap one of
// these so transports and retry loops can classify them with errors.Is.
var (
	// ErrNotFound indicates resource not found within the caller's business.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed or out-of-range input. No state changes.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks an illegal transition or a duplicate document.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock marks a reservation or movement exceeding available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrIntegrity marks a programming defect such as an unbalanced ledger entry.
	ErrIntegrity = errors.New("integrity violation")
	// ErrTransient marks a store failure that is safe to retry as a whole transaction.
	ErrTransient = errors.New("transient store failure")
	// ErrUnauthorized occurs when the caller identity is missing.
	ErrUnauthorized = errors.New("unauthorized")
)

// Retryable reports whether err may be retried by re-running the transaction.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
