package types

import "errors"

// Entity is implemented by every value the table gateway can persist.
// An entity with no backend identifier yet is virtual; a virtual entity is
// always dirty.
type Entity interface {
	// ID returns the backend identifier, or a non-positive placeholder while
	// the entity is virtual.
	ID() int64

	// IsVirtual reports whether the entity has never been stored.
	IsVirtual() bool

	// Dirty reports whether any persisted field differs from the last
	// stored snapshot.
	Dirty() bool

	// ToBackend projects the entity into a column/value record holding only
	// the fields that need writing. force selects every column.
	ToBackend(force bool) Record

	// MarkStored records a successful write: it adopts id and takes a new
	// clean snapshot.
	MarkStored(id int64)
}

// Store operation errors.
var (
	ErrNotFound              = errors.New("entity not found")
	ErrInvalidID             = errors.New("invalid entity ID")
	ErrWriteFailed           = errors.New("write failed")
	ErrTransactionFailed     = errors.New("transaction failed")
	ErrMalformedRecord       = errors.New("malformed record")
	ErrUnresolvableReference = errors.New("unresolvable reference")
)

// Store lifecycle errors.
var (
	ErrNoConnection    = errors.New("store is not open")
	ErrAlreadyAttached = errors.New("store is already attached")
)
