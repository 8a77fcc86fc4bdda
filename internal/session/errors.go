package session

import (
	"errors"
	"fmt"

	"github.com/mcdev12/scrumdeck/internal/store"
)

// Command-level validation failures. These are rejected synchronously and
// never reach the store.
var (
	ErrInvalidSession  = errors.New("session id is required")
	ErrInvalidName     = errors.New("display name is required")
	ErrInvalidVote     = errors.New("vote value is not in the deck")
	ErrInvalidPlayer   = errors.New("player id is required")
	ErrNotJoined       = errors.New("no player credential held")
	ErrNotSynced       = errors.New("no synced snapshot held yet")
	ErrUnauthorized    = errors.New("only the session admin may do that")
	ErrNothingToReveal = errors.New("no votes have been cast")
	ErrNotRevealed     = errors.New("votes are not revealed")
	ErrAlreadyRevealed = errors.New("votes are already revealed")
)

// ErrStoreUnavailable marks transport or substrate failures surfaced by
// commands. The caller's projection is retained stale; retrying is a caller
// concern.
var ErrStoreUnavailable = store.ErrUnavailable

// wrapStore adds the failing command to a store error. Backends tag substrate
// failures with store.ErrUnavailable themselves; anything else (a path or
// marshal validation failure) passes through unclassified, since it signals a
// caller bug rather than an unavailable store.
func wrapStore(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
