package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/store"
)

// ConnState describes the subscription's delivery status.
type ConnState string

const (
	// StateLoading means no notification has arrived yet. Distinct from a
	// session that is known not to exist.
	StateLoading ConnState = "loading"
	// StateSynced means the projection reflects the last delivered snapshot,
	// which may be "no session exists at this id".
	StateSynced ConnState = "synced"
	// StateErrored means delivery failed; the projection is retained stale
	// rather than blanked.
	StateErrored ConnState = "errored"
)

// View is one observation of the engine: the current projection plus the
// subscription's state. Data is nil both while loading and when the session
// does not exist; State tells the two apart.
type View struct {
	Data  *models.SessionData
	State ConnState
	Err   error
}

// SessionMissing reports whether the subscription resolved but no aggregate
// exists at the session id. A valid terminal condition, not an error.
func (v View) SessionMissing() bool {
	return v.State == StateSynced && v.Data == nil
}

// Config holds engine tuning.
type Config struct {
	// HeartbeatInterval is how often the engine refreshes its own player's
	// lastSeen timestamp.
	HeartbeatInterval time.Duration
	Reaper            ReaperConfig
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		Reaper:            DefaultReaperConfig(),
	}
}

// Engine subscribes to one session's aggregate and maintains this device's
// authoritative local projection. It is a pure projector: every accepted
// notification fully replaces the projection, commands never update it
// optimistically, and the issuer sees its own effect only once the
// round-trip notification arrives.
type Engine struct {
	store     store.Store
	adapter   *Adapter
	sessionID string
	local     *models.LocalPlayer // nil for a pure observer
	clock     clockwork.Clock
	cfg       Config

	mu   sync.RWMutex
	view View

	// updates holds at most the latest view; older unread views are evicted.
	updates chan View
}

// NewEngine creates an engine for one session. The credential is threaded in
// explicitly by the caller that acquired it on create or join, never looked
// up from ambient storage. Pass nil to observe without mutating.
func NewEngine(st store.Store, sessionID string, local *models.LocalPlayer, cfg Config, clock clockwork.Clock) (*Engine, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	return &Engine{
		store:     st,
		adapter:   NewAdapter(st, clock),
		sessionID: sessionID,
		local:     local,
		clock:     clock,
		cfg:       cfg,
		view:      View{State: StateLoading},
		updates:   make(chan View, 1),
	}, nil
}

// SessionID returns the session the engine is bound to.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Local returns the credential the engine holds, if any.
func (e *Engine) Local() *models.LocalPlayer {
	return e.local
}

// Run subscribes to the session path and projects notifications until the
// context is cancelled. Cancelling stops projection updates and the presence
// ticker; in-flight writes are not cancelled. Run returns nil on a clean
// shutdown.
func (e *Engine) Run(ctx context.Context) error {
	updates, cancel, err := e.store.Subscribe(ctx, SessionPath(e.sessionID))
	if err != nil {
		e.mu.Lock()
		e.view.State = StateErrored
		e.view.Err = err
		v := e.view
		e.mu.Unlock()
		e.publish(v)
		return wrapStore("subscribe", err)
	}
	defer cancel()

	if e.local != nil {
		go e.heartbeatLoop(ctx)
		if e.cfg.Reaper.Enabled && e.local.Role == models.RoleAdmin {
			go e.reapLoop(ctx)
		}
	}

	log.Debug().Str("session_id", e.sessionID).Msg("engine subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			e.apply(u)
		}
	}
}

// apply folds one store notification into the projection.
func (e *Engine) apply(u store.Update) {
	e.mu.Lock()
	switch {
	case u.Err != nil:
		// Delivery failure: stale-but-available beats blanking the screen.
		e.view.State = StateErrored
		e.view.Err = u.Err
	case !u.Exists:
		e.view = View{State: StateSynced}
	default:
		var data models.SessionData
		if err := json.Unmarshal(u.Data, &data); err != nil {
			e.view.State = StateErrored
			e.view.Err = err
		} else {
			e.view = View{Data: &data, State: StateSynced}
		}
	}
	v := e.view
	e.mu.Unlock()
	e.publish(v)
}

// publish coalesces: only the latest view is kept for the consumer.
func (e *Engine) publish(v View) {
	for {
		select {
		case e.updates <- v:
			return
		default:
			select {
			case <-e.updates:
			default:
			}
		}
	}
}

// View returns the current observation.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// Updates yields the latest view after every accepted notification.
// Intermediate views may be skipped; the channel always converges on the
// newest one.
func (e *Engine) Updates() <-chan View {
	return e.updates
}

func (e *Engine) heartbeatLoop(ctx context.Context) {
	// Initial heartbeat on join, then the fixed period.
	if err := e.adapter.Heartbeat(ctx, e.sessionID, e.local.ID); err != nil {
		log.Warn().Err(err).Str("session_id", e.sessionID).Msg("initial heartbeat failed")
	}

	ticker := e.clock.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := e.adapter.Heartbeat(ctx, e.sessionID, e.local.ID); err != nil {
				log.Warn().Err(err).Str("session_id", e.sessionID).Msg("heartbeat failed")
			}
		}
	}
}

// CastVote submits this device's vote for the current round.
func (e *Engine) CastVote(ctx context.Context, vote models.VoteValue) error {
	if e.local == nil {
		return ErrNotJoined
	}
	return e.adapter.CastVote(ctx, e.sessionID, e.local.ID, vote)
}

// Reveal exposes all votes simultaneously. Guarded at issuance: admin only,
// at least one vote cast, not already revealed.
func (e *Engine) Reveal(ctx context.Context) error {
	if e.local == nil {
		return ErrNotJoined
	}
	if err := CanReveal(e.View().Data, e.local.ID); err != nil {
		return err
	}
	return e.adapter.RevealVotes(ctx, e.sessionID)
}

// Reset starts the next round from the currently held snapshot. Guarded at
// issuance: admin only, votes currently revealed.
func (e *Engine) Reset(ctx context.Context) error {
	if e.local == nil {
		return ErrNotJoined
	}
	v := e.View()
	if err := CanReset(v.Data, e.local.ID); err != nil {
		return err
	}
	return e.adapter.ResetVotes(ctx, e.sessionID, v.Data)
}

// RemovePlayer deletes a player entry. Players may remove themselves; the
// admin may remove anyone.
func (e *Engine) RemovePlayer(ctx context.Context, playerID string) error {
	if e.local == nil {
		return ErrNotJoined
	}
	if err := CanRemove(e.View().Data, e.local.ID, playerID); err != nil {
		return err
	}
	return e.adapter.RemovePlayer(ctx, e.sessionID, playerID)
}

// Leave removes this device's own player entry. The caller is responsible
// for discarding the credential and cancelling Run afterwards.
func (e *Engine) Leave(ctx context.Context) error {
	if e.local == nil {
		return nil
	}
	return e.adapter.RemovePlayer(ctx, e.sessionID, e.local.ID)
}
