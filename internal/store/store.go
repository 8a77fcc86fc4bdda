// Package store defines the shared reactive store the session core is built
// atop: a hierarchical key-path store with push subscriptions delivering
// full-subtree snapshots. Implementations provide per-path write ordering and
// eventual delivery, but no transactional isolation across paths.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the underlying substrate could not complete a
// read, write, or delivery.
var ErrUnavailable = errors.New("store unavailable")

// Update is one push notification from a subscription: the full current
// subtree at the subscribed path as JSON, its absence, or a delivery failure.
// When Err is set the other fields are meaningless and subscribers should
// keep whatever snapshot they already hold.
type Update struct {
	Data   []byte
	Exists bool
	Err    error
}

// CancelFunc tears down a subscription. After it returns no further updates
// are delivered. Safe to call more than once.
type CancelFunc func()

// Store is a push-subscribe key-path store.
//
// Write replaces the subtree at path with value (marshaled to JSON); a nil
// value removes the subtree, same as Delete. MultiWrite applies several
// subtree replacements and notifies subscribers once per affected
// subscription, but is not a transaction against concurrent writers.
type Store interface {
	Subscribe(ctx context.Context, path string) (<-chan Update, CancelFunc, error)
	Write(ctx context.Context, path string, value any) error
	MultiWrite(ctx context.Context, writes map[string]any) error
	Delete(ctx context.Context, path string) error
}
