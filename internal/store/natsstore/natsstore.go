// Package natsstore implements the shared reactive store on top of a NATS
// JetStream Key-Value bucket. Each child of the tree root is one KV key
// holding a full aggregate as JSON; deeper path writes are read-modify-write
// against that document and deliberately last-write-wins, since the KV
// substrate offers no cross-key transactions.
package natsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mcdev12/scrumdeck/internal/store"
)

// Config holds configuration for the NATS-backed store.
type Config struct {
	URL           string
	Bucket        string // also the required first segment of every path
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the configuration used by a local development setup.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "sessions",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Store is a shared reactive store backed by a JetStream KV bucket.
type Store struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

var _ store.Store = (*Store)(nil)

// New connects to NATS and ensures the KV bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		History: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure KV bucket %s: %w", cfg.Bucket, err)
	}

	return &Store{nc: nc, kv: kv, bucket: cfg.Bucket}, nil
}

// Close tears down the NATS connection.
func (s *Store) Close() {
	s.nc.Close()
}

// splitPath resolves a store path into the KV key (second segment) and the
// dotted sub-document path below it ("" for the whole document).
func (s *Store) splitPath(path string) (key, sub string, err error) {
	segments, err := store.SplitPath(path)
	if err != nil {
		return "", "", err
	}
	if segments[0] != s.bucket {
		return "", "", fmt.Errorf("path %q is outside bucket %q", path, s.bucket)
	}
	if len(segments) < 2 {
		return "", "", fmt.Errorf("path %q does not name a key in bucket %q", path, s.bucket)
	}
	return segments[1], strings.Join(segments[2:], "."), nil
}

// Subscribe watches the aggregate containing path and projects the requested
// subtree out of every revision.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan store.Update, store.CancelFunc, error) {
	key, sub, err := s.splitPath(path)
	if err != nil {
		return nil, nil, err
	}

	watcher, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: watch %s: %w", store.ErrUnavailable, key, err)
	}

	ch := make(chan store.Update, 64)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = watcher.Stop()
			close(done)
		})
	}

	go func() {
		defer close(ch)
		initial, seen := true, false
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					// Watcher ended without being cancelled: delivery failure.
					select {
					case ch <- store.Update{Err: fmt.Errorf("%w: watch on %s ended", store.ErrUnavailable, key)}:
					case <-done:
					}
					return
				}
				if entry == nil {
					// End of initial replay. If the key never existed the
					// subscriber still needs a first notification.
					if initial && !seen {
						select {
						case ch <- store.Update{Exists: false}:
						case <-done:
							return
						}
					}
					initial = false
					continue
				}
				seen = true
				select {
				case ch <- projectEntry(entry, sub):
				case <-done:
					return
				}
			}
		}
	}()

	return ch, cancel, nil
}

func projectEntry(entry jetstream.KeyValueEntry, sub string) store.Update {
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return store.Update{Exists: false}
	default:
	}
	data := entry.Value()
	if sub == "" {
		out := make([]byte, len(data))
		copy(out, data)
		return store.Update{Data: out, Exists: true}
	}
	res := gjson.GetBytes(data, sub)
	if !res.Exists() {
		return store.Update{Exists: false}
	}
	return store.Update{Data: []byte(res.Raw), Exists: true}
}

// Write replaces the subtree at path. A nil value removes it.
func (s *Store) Write(ctx context.Context, path string, value any) error {
	return s.MultiWrite(ctx, map[string]any{path: value})
}

// Delete removes the subtree at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.MultiWrite(ctx, map[string]any{path: nil})
}

// MultiWrite groups the writes by KV key and applies each group as a single
// Put, so subscribers of one aggregate observe the batch as one
// notification. Groups touching different keys are applied sequentially with
// no isolation between them.
func (s *Store) MultiWrite(ctx context.Context, writes map[string]any) error {
	grouped := make(map[string][]pathOp)
	for path, value := range writes {
		key, sub, err := s.splitPath(path)
		if err != nil {
			return err
		}
		o := pathOp{sub: sub}
		if value != nil {
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("marshal value for %s: %w", path, err)
			}
			o.raw = raw
		}
		grouped[key] = append(grouped[key], o)
	}

	for key, ops := range grouped {
		if err := s.applyKey(ctx, key, ops); err != nil {
			return err
		}
	}
	return nil
}

// pathOp is one subtree replacement inside a single KV document. A nil raw
// removes the subtree.
type pathOp struct {
	sub string
	raw []byte
}

func (s *Store) applyKey(ctx context.Context, key string, ops []pathOp) error {
	// Whole-document replace or delete short-circuits the read-modify-write.
	if len(ops) == 1 && ops[0].sub == "" {
		if ops[0].raw == nil {
			if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
				return fmt.Errorf("%w: delete %s: %w", store.ErrUnavailable, key, err)
			}
			return nil
		}
		if _, err := s.kv.Put(ctx, key, ops[0].raw); err != nil {
			return fmt.Errorf("%w: put %s: %w", store.ErrUnavailable, key, err)
		}
		return nil
	}

	doc := []byte(`{}`)
	entry, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		doc = entry.Value()
	case errors.Is(err, jetstream.ErrKeyNotFound):
	default:
		return fmt.Errorf("%w: get %s: %w", store.ErrUnavailable, key, err)
	}

	for _, o := range ops {
		if o.sub == "" {
			if o.raw == nil {
				doc = []byte(`{}`)
			} else {
				doc = o.raw
			}
			continue
		}
		if o.raw == nil {
			doc, err = sjson.DeleteBytes(doc, o.sub)
		} else {
			doc, err = sjson.SetRawBytes(doc, o.sub, o.raw)
		}
		if err != nil {
			return fmt.Errorf("apply write at %s/%s: %w", key, o.sub, err)
		}
	}

	// Plain Put, not compare-and-swap: a concurrent writer between our Get
	// and this Put loses its interleaved write. That is the accepted
	// last-write-wins model for this store.
	if _, err := s.kv.Put(ctx, key, doc); err != nil {
		return fmt.Errorf("%w: put %s: %w", store.ErrUnavailable, key, err)
	}
	return nil
}
