package widget

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySubmission is returned when a draft has no text and no
	// attachment. Nothing is written.
	ErrEmptySubmission = errors.New("comment has no text and no attachment")

	// ErrNotFound is returned when a comment or reply does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by a ReactionSwapper when the reactions
	// changed since they were loaded.
	ErrVersionConflict = errors.New("reactions changed concurrently")

	// ErrReactionConflict is returned when a reaction could not be applied
	// after every compare-and-swap attempt lost a race.
	ErrReactionConflict = errors.New("reaction conflict: too many concurrent updates")

	// ErrInvalidCursor is returned for a continuation cursor that does not
	// decode or belongs to another sort order.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidEmoji is returned for an empty or oversized reaction key.
	ErrInvalidEmoji = errors.New("invalid emoji")

	// ErrNotSignedIn is returned when a submit is attempted without a user.
	ErrNotSignedIn = errors.New("not signed in")
)

// An AuthError reports a failed sign-in or token verification. The user stays
// signed out and nothing is retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// An UploadError reports a failed attachment upload. A submit that hits it
// writes no document.
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// A WriteError reports a failed document create or update. Previously uploaded
// attachments are not rolled back.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
