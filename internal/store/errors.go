package store

import (
	"errors"
	"fmt"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/record"
)

var (
	// ErrNotFound is matched by errors.Is for every NotFound error.
	ErrNotFound = errors.New("not found")

	ErrClosed             = errors.New("store is closed")
	ErrReadOnly           = errors.New("store is opened read-only")
	ErrLocked             = errors.New("store is locked by another process")
	ErrTransactionOpen    = errors.New("a transaction is already open")
	ErrTransactionClosed  = errors.New("transaction is already closed")
	ErrIndexDetached      = errors.New("index is detached while a batch transaction is open")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
	ErrNeedsUpgrade       = errors.New("store needs an upgrade; open it read-write")
	ErrForeignTransaction = errors.New("transaction belongs to another store")
)

// ErrorCode categorises store errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a handle or natural key is absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeDecode indicates stored bytes could not be decoded.
	ErrCodeDecode ErrorCode = "DECODE"

	// ErrCodeVersion indicates the store format is outside the supported range.
	ErrCodeVersion ErrorCode = "VERSION"

	// ErrCodeReferentialInconsistency indicates the reference map disagrees
	// with the records it was derived from.
	ErrCodeReferentialInconsistency ErrorCode = "REFERENTIAL_INCONSISTENCY"

	// ErrCodeTransactionAbort indicates a mutation failed and the whole
	// transaction was rolled back.
	ErrCodeTransactionAbort ErrorCode = "TRANSACTION_ABORT"
)

// Error is the structured error returned by store operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation ("get", "commit", "open").
	Op string

	// Kind and Handle identify the affected record, when there is one.
	Kind   record.Kind
	Handle record.Handle

	// Message is a human-readable description.
	Message string

	// Found, Min and Max are set on version errors.
	Found, Min, Max int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Kind.Valid() {
		msg += fmt.Sprintf(" %s", e.Kind)
	}
	if e.Handle != "" {
		msg += fmt.Sprintf(" %s", e.Handle)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match NotFound errors.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Code == ErrCodeNotFound
}

func notFound(op string, kind record.Kind, h record.Handle, msg string) error {
	return &Error{Code: ErrCodeNotFound, Op: op, Kind: kind, Handle: h, Message: msg}
}

func decodeError(op string, kind record.Kind, h record.Handle, err error) error {
	return &Error{Code: ErrCodeDecode, Op: op, Kind: kind, Handle: h, Err: err}
}

func versionError(found int) error {
	e := &Error{Code: ErrCodeVersion, Op: "open", Found: found, Min: MinSupportedVersion, Max: CurrentVersion}
	if found > CurrentVersion {
		e.Message = fmt.Sprintf("store version %d is newer than supported version %d", found, CurrentVersion)
	} else {
		e.Message = fmt.Sprintf("store version %d is older than minimum supported version %d", found, MinSupportedVersion)
	}
	return e
}

func inconsistency(op string, owner record.Handle, msg string) error {
	return &Error{Code: ErrCodeReferentialInconsistency, Op: op, Handle: owner, Message: msg}
}

// abortError wraps a failure that rolled back a transaction. A cause that is
// already a store error keeps its code reachable through errors.As.
func abortError(op string, desc string, err error) error {
	return &Error{Code: ErrCodeTransactionAbort, Op: op, Message: fmt.Sprintf("transaction %q rolled back", desc), Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	for errors.As(err, &se) {
		if se.Code == code {
			return true
		}
		err = se.Err
		if err == nil {
			return false
		}
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsDecodeError reports whether err is a decode error, either raised by the
// codec or wrapped by the store.
func IsDecodeError(err error) bool {
	return hasCode(err, ErrCodeDecode) || codec.IsDecodeError(err)
}

// IsVersionError reports whether err is a version gate failure.
func IsVersionError(err error) bool {
	return hasCode(err, ErrCodeVersion)
}

// IsReferentialInconsistency reports whether err is a reference map
// invariant violation.
func IsReferentialInconsistency(err error) bool {
	return hasCode(err, ErrCodeReferentialInconsistency)
}

// IsTransactionAbort reports whether err rolled back a transaction.
func IsTransactionAbort(err error) bool {
	return hasCode(err, ErrCodeTransactionAbort)
}

// UserMessage maps an error to guidance suitable for an end user. Internal
// table names never appear in the result.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	switch {
	case IsVersionError(err) && errors.As(err, &se) && se.Found > se.Max:
		return "This family tree was created by a newer version of the software. Upgrade the software to open it."
	case IsVersionError(err):
		return "This family tree was created by a version of the software that is too old to open directly. Open it with an intermediate version first, or restore it from a backup."
	case IsDecodeError(err):
		return "The family tree data is unreadable. Run a repair (kinstore rebuild) or restore from a backup."
	case IsReferentialInconsistency(err):
		return "The family tree's reference map is inconsistent. Run a repair (kinstore rebuild)."
	case errors.Is(err, ErrLocked):
		return "The family tree is open in another program. Close it there, or break the lock if that program is no longer running."
	case IsNotFound(err):
		return "The requested record does not exist."
	case IsTransactionAbort(err):
		return "The change could not be saved and was rolled back. No data was modified."
	default:
		return err.Error()
	}
}
