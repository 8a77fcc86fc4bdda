package gateway

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store"
)

// RoomManager runs one observer synchronization engine per session with at
// least one live connection, and fans every projection update out to that
// session's pool. Rooms are reference counted: the engine starts with the
// first connection and stops with the last.
type RoomManager struct {
	store store.Store
	cm    *ConnectionManager
	clock clockwork.Clock
	cfg   session.Config

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	engine *session.Engine
	cancel context.CancelFunc
	refs   int
}

// NewRoomManager creates a room manager broadcasting through cm.
func NewRoomManager(st store.Store, cm *ConnectionManager, cfg session.Config, clock clockwork.Clock) *RoomManager {
	return &RoomManager{
		store: st,
		cm:    cm,
		clock: clock,
		cfg:   cfg,
		rooms: make(map[string]*room),
	}
}

// Acquire adds a reference to a session's room, starting its engine if this
// is the first.
func (rm *RoomManager) Acquire(sessionID string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if r, ok := rm.rooms[sessionID]; ok {
		r.refs++
		return nil
	}

	// Observer engine: no credential, so no heartbeat and no reaper.
	engine, err := session.NewEngine(rm.store, sessionID, nil, rm.cfg, rm.clock)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &room{engine: engine, cancel: cancel, refs: 1}
	rm.rooms[sessionID] = r

	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("room engine stopped")
		}
	}()
	go rm.pump(ctx, sessionID, engine)

	log.Info().Str("session_id", sessionID).Msg("room opened")
	return nil
}

// Release drops a reference, tearing the room down when none remain.
func (rm *RoomManager) Release(sessionID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r, ok := rm.rooms[sessionID]
	if !ok {
		return
	}
	r.refs--
	if r.refs > 0 {
		return
	}
	r.cancel()
	delete(rm.rooms, sessionID)
	log.Info().Str("session_id", sessionID).Msg("room closed")
}

// View returns the room's current projection view.
func (rm *RoomManager) View(sessionID string) (session.View, bool) {
	rm.mu.Lock()
	r, ok := rm.rooms[sessionID]
	rm.mu.Unlock()
	if !ok {
		return session.View{}, false
	}
	return r.engine.View(), true
}

// pump relays engine updates to the session's connection pool.
func (rm *RoomManager) pump(ctx context.Context, sessionID string, engine *session.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-engine.Updates():
			rm.cm.BroadcastToSession(sessionID, stateFrame(sessionID, v))
		}
	}
}
