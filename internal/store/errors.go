// ABOUTME: Sentinel errors and boundary error classification for the store
// ABOUTME: Maps driver-level failures onto the store's error taxonomy

package store

import (
	"errors"
	"strings"
)

// Sentinel errors forming the store's error taxonomy. Callers match them
// with errors.Is; operations wrap them with contextual detail.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned on a name uniqueness violation
	// (profile names store-wide, plugin names within a profile, group
	// names store-wide).
	ErrDuplicateName = errors.New("name already in use")

	// ErrDuplicateKey is returned when a resource key is already taken.
	ErrDuplicateKey = errors.New("resource key already in use")

	// ErrInvalidParam is returned when the plugin verifier rejects a
	// plugin's type, version or parameter blob.
	ErrInvalidParam = errors.New("invalid plugin parameter")

	// ErrInvalidRange is returned when a reorder range has its start
	// after its end.
	ErrInvalidRange = errors.New("invalid order range")

	// ErrDecode is returned when a batch-update payload fails to decode.
	// No mutation is applied.
	ErrDecode = errors.New("cannot decode payload")

	// ErrResourceInUse is returned when deleting a resource that a
	// subscription still references.
	ErrResourceInUse = errors.New("resource still referenced by a subscription")

	// ErrBusy is returned on transient database contention. The caller
	// may retry the operation.
	ErrBusy = errors.New("database busy")
)

// ErrorKind is the boundary-facing classification of a store failure.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindDuplicateName ErrorKind = "duplicate_name"
	KindDuplicateKey  ErrorKind = "duplicate_key"
	KindInvalidParam  ErrorKind = "invalid_param"
	KindInvalidRange  ErrorKind = "invalid_range"
	KindDecode        ErrorKind = "decode_error"
	KindInUse         ErrorKind = "in_use"
	KindBusy          ErrorKind = "busy"
	KindSchema        ErrorKind = "schema_error"
	KindIO            ErrorKind = "io_error"
)

// BoundaryError is the flattened failure report handed across the call
// boundary: a kind tag plus descriptive message and context strings.
type BoundaryError struct {
	Kind    ErrorKind
	Message string
	Context string
}

// Classify maps a store error onto its boundary report. Driver-level
// failures that match no sentinel classify as io_error.
func Classify(err error) BoundaryError {
	kind := KindIO
	switch {
	case errors.Is(err, ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrDuplicateName):
		kind = KindDuplicateName
	case errors.Is(err, ErrDuplicateKey):
		kind = KindDuplicateKey
	case errors.Is(err, ErrInvalidParam):
		kind = KindInvalidParam
	case errors.Is(err, ErrInvalidRange):
		kind = KindInvalidRange
	case errors.Is(err, ErrDecode):
		kind = KindDecode
	case errors.Is(err, ErrResourceInUse):
		kind = KindInUse
	case errors.Is(err, ErrBusy):
		kind = KindBusy
	case isSchemaError(err):
		kind = KindSchema
	}

	be := BoundaryError{Kind: kind, Message: err.Error()}
	if u := errors.Unwrap(err); u != nil {
		be.Context = u.Error()
	}
	return be
}

// isConstraintViolation reports whether err is a SQLite UNIQUE constraint
// violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err is a SQLite foreign key
// violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isBusy reports whether err is transient SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked")
}

// isSchemaError reports whether err indicates a corrupt or incompatible
// database file rather than a transient failure.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_CORRUPT") ||
		strings.Contains(msg, "SQLITE_NOTADB") ||
		strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "malformed")
}
