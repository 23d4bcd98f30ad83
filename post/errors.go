package post

import (
	"errors"
	"fmt"
)

// Validation failures. The action is refused and no store call is made.
var (
	ErrEmptyBody    = errors.New("post: text is empty")
	ErrBodyTooLong  = fmt.Errorf("post: text is longer than %d characters", MaxBodyRunes)
	ErrSizeExceeded = fmt.Errorf("post: image is larger than %dKB", MaxAttachmentBytes/1024)
	ErrNotImage     = errors.New("post: file is not an image")
	ErrNoSelection  = errors.New("post: exactly one file must be selected")
)

// Authorization failures. Callers treat these as silent no-ops.
var (
	ErrNoIdentity = errors.New("post: not signed in")
	ErrNotOwner   = errors.New("post: not the author")
)

// State failures: the request does not fit the session's current mode.
var (
	ErrInFlight     = errors.New("post: another write is in progress")
	ErrNotEditing   = errors.New("post: not editing")
	ErrNotViewing   = errors.New("post: not viewing")
	ErrNotConfirmed = errors.New("post: deletion not confirmed")
)

// StoreError wraps a failed document-store call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "post: store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyBody) ||
		errors.Is(err, ErrBodyTooLong) ||
		errors.Is(err, ErrSizeExceeded) ||
		errors.Is(err, ErrNotImage) ||
		errors.Is(err, ErrNoSelection)
}

// IsAuthorization reports whether err is an ownership or identity failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNoIdentity) || errors.Is(err, ErrNotOwner)
}

// IsStore reports whether err came from the document store.
func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
