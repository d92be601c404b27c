package ledger

import (
	"fmt"
	"strings"
)

// PostingInput groups fields required to create a ledger entry.
type PostingInput struct {
	BusinessID int64
	SourceType SourceType
	SourceID   int64
	Memo       string
	PostedBy   int64
	Lines      []Line
}

// Validate recomputes the entry totals instead of trusting the caller.
func (in PostingInput) Validate() error {
	if in.BusinessID == 0 {
		return fmt.Errorf("%w: business required", ErrInvalidSource)
	}
	if !in.SourceType.Valid() || in.SourceID <= 0 {
		return fmt.Errorf("%w: %s/%d", ErrInvalidSource, in.SourceType, in.SourceID)
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidLine, idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d negative amount", ErrInvalidLine, idx)
		}
		if (line.Debit == 0) == (line.Credit == 0) {
			return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", ErrInvalidLine, idx)
		}
	}
	debit, credit, err := Totals(in.Lines)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnbalanced, err)
	}
	if debit != credit {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}
