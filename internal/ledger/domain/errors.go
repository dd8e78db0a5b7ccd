package ledger

import "errors"

var (
	// ErrMalformedEntry marks a raw record that cannot become an entry.
	ErrMalformedEntry = errors.New("ledger: malformed entry")
	// ErrUnknownRecordKind is returned for an unsupported record shape.
	ErrUnknownRecordKind = errors.New("ledger: unknown record kind")
)
