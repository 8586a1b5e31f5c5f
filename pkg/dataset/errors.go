package dataset

import (
	"errors"
	"fmt"

	"github.com/ha1tch/socnet/pkg/storage"
)

// Kind classifies service errors for callers
type Kind int

const (
	// KindInternal is anything unanticipated
	KindInternal Kind = iota
	// KindValidation covers malformed input, duplicate names, user ID
	// collisions and empty graphs
	KindValidation
	// KindNotFound means the requested dataset does not exist
	KindNotFound
	// KindStorage is a persistence failure during a write
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

var (
	// ErrBlankName is returned for an empty or whitespace-only dataset name
	ErrBlankName = errors.New("dataset name is required")
	// ErrEmptyGraph is returned when the file yields no users
	ErrEmptyGraph = errors.New("file contains no valid user data or friendships")
)

const (
	msgUserIDExists = "cannot import dataset with a user ID which already exists in database"
	msgSaveFailed   = "failed to save dataset to database"
)

// Error is returned by every Service operation
type Error struct {
	Kind Kind
	Op   string
	// Msg is the caller facing message; the wrapped error's text is used
	// when empty.
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error in %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// classifyWrite maps an error from the write path to its kind. Errors
// that are already classified pass through unchanged.
func classifyWrite(op string, err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, storage.ErrDuplicateName):
		return &Error{Kind: KindValidation, Op: op, Msg: storage.ErrDuplicateName.Error(), Err: err}
	case errors.Is(err, storage.ErrUserIDExists):
		return &Error{Kind: KindValidation, Op: op, Msg: msgUserIDExists, Err: err}
	default:
		return &Error{Kind: KindStorage, Op: op, Msg: msgSaveFailed, Err: err}
	}
}
