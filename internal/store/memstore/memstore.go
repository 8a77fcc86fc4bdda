// Package memstore is an in-process implementation of the shared reactive
// store: one JSON document holding the whole tree, path-addressed reads and
// writes via gjson/sjson, and per-subscription snapshot fanout. It backs
// tests and single-node deployments.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mcdev12/scrumdeck/internal/store"
)

const subscriberBuffer = 64

// Store is an in-memory reactive tree. The zero value is not usable; use New.
type Store struct {
	mu   sync.Mutex
	doc  []byte
	subs map[*subscriber]struct{}
}

type subscriber struct {
	path     string
	segments []string
	ch       chan store.Update
	done     chan struct{}
	once     sync.Once
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		doc:  []byte(`{}`),
		subs: make(map[*subscriber]struct{}),
	}
}

var _ store.Store = (*Store)(nil)

// Subscribe registers for full-subtree snapshots at path. The current
// snapshot (or its absence) is delivered immediately, then one update per
// mutation batch touching the path. Cancelling the context or calling the
// returned CancelFunc stops delivery.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan store.Update, store.CancelFunc, error) {
	segments, err := store.SplitPath(path)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{
		path:     path,
		segments: segments,
		ch:       make(chan store.Update, subscriberBuffer),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	// First notification carries the current state so subscribers can leave
	// their loading phase even when nothing exists at the path yet. It is
	// queued before the lock drops so a concurrent write cannot fan out a
	// newer snapshot ahead of it; the channel is fresh and buffered, so the
	// send cannot block.
	sub.ch <- s.snapshotLocked(sub)
	s.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

// Write replaces the subtree at path with value. A nil value removes the
// subtree. Missing intermediate objects are created.
func (s *Store) Write(ctx context.Context, path string, value any) error {
	return s.MultiWrite(ctx, map[string]any{path: value})
}

// Delete removes the subtree at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.MultiWrite(ctx, map[string]any{path: nil})
}

// MultiWrite applies all subtree replacements and notifies each affected
// subscriber exactly once with the resulting snapshot.
func (s *Store) MultiWrite(_ context.Context, writes map[string]any) error {
	if len(writes) == 0 {
		return nil
	}

	type op struct {
		segments []string
		dotted   string
		raw      []byte // nil means delete
	}
	ops := make([]op, 0, len(writes))
	for path, value := range writes {
		segments, err := store.SplitPath(path)
		if err != nil {
			return err
		}
		o := op{segments: segments}
		o.dotted, _ = store.DotPath(path)
		if value != nil {
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("marshal value for %s: %w", path, err)
			}
			o.raw = raw
		}
		ops = append(ops, o)
	}

	s.mu.Lock()
	doc := s.doc
	var err error
	for _, o := range ops {
		if o.raw == nil {
			doc, err = sjson.DeleteBytes(doc, o.dotted)
		} else {
			doc, err = sjson.SetRawBytes(doc, o.dotted, o.raw)
		}
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("apply write at %s: %w", o.dotted, err)
		}
	}
	s.doc = doc

	// Deliver while still holding the lock so concurrent batches cannot
	// reach a subscriber out of document order. Sends never block: a full
	// buffer evicts its oldest queued snapshot instead.
	for sub := range s.subs {
		for _, o := range ops {
			if store.IsPrefix(sub.segments, o.segments) {
				s.deliverLocked(sub, s.snapshotLocked(sub))
				break
			}
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) deliverLocked(sub *subscriber, u store.Update) {
	select {
	case sub.ch <- u:
	case <-sub.done:
	default:
		// Buffer full: evict the oldest queued snapshot so the consumer
		// still converges on the latest state.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- u:
		case <-sub.done:
		default:
			log.Warn().Str("path", sub.path).Msg("subscriber buffer full, dropping snapshot")
		}
	}
}

func (s *Store) snapshotLocked(sub *subscriber) store.Update {
	dotted, _ := store.DotPath(sub.path)
	res := gjson.GetBytes(s.doc, dotted)
	if !res.Exists() {
		return store.Update{Exists: false}
	}
	// Raw aliases the backing document; copy so later writes cannot mutate a
	// delivered snapshot.
	data := make([]byte, len(res.Raw))
	copy(data, res.Raw)
	return store.Update{Data: data, Exists: true}
}
