package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store"
)

const commandTimeout = 5 * time.Second

// Service is the session gateway: it owns the WebSocket connection pools,
// the per-session rooms, and the command dispatch that applies the
// issuance-layer guards before anything is written to the store.
type Service struct {
	cm      *ConnectionManager
	rooms   *RoomManager
	adapter *session.Adapter
	handler *Handler
	clock   clockwork.Clock
	cfg     Config
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	Engine           session.Config
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Engine:           session.DefaultConfig(),
	}
}

// NewService creates the gateway on top of a shared reactive store.
func NewService(st store.Store, cfg Config, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(cfg.ConnectionConfig)
	s := &Service{
		cm:      cm,
		rooms:   NewRoomManager(st, cm, cfg.Engine, clock),
		adapter: session.NewAdapter(st, clock),
		clock:   clock,
		cfg:     cfg,
	}
	s.handler = NewHandler(s)

	cm.onRegister = s.handleRegister
	cm.onUnregister = s.handleUnregister
	cm.onMessage = s.handleMessage
	return s
}

// Start runs the broadcast loop until the context ends.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway")
	s.cm.Start(ctx)
	log.Info().Msg("session gateway stopped")
	return nil
}

// Handler returns the HTTP handler for WebSocket upgrades and the REST
// surface.
func (s *Service) Handler() *Handler {
	return s.handler
}

func (s *Service) handleRegister(conn *Connection) {
	if err := s.rooms.Acquire(conn.SessionID); err != nil {
		log.Error().Err(err).Str("session_id", conn.SessionID).Msg("failed to open room")
		s.cm.SendToConnection(conn, &ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}

	// Late joiners get the current projection immediately instead of waiting
	// for the next mutation.
	if v, ok := s.rooms.View(conn.SessionID); ok {
		s.cm.SendToConnection(conn, stateFrame(conn.SessionID, v))
	}

	if conn.PlayerID() != "" {
		conn.presenceOnce.Do(func() { go s.presenceLoop(conn) })
	}
}

func (s *Service) handleUnregister(conn *Connection) {
	s.rooms.Release(conn.SessionID)
}

// presenceLoop heartbeats on behalf of the connected device for as long as
// the socket stays open, fulfilling the per-device liveness contract.
func (s *Service) presenceLoop(conn *Connection) {
	playerID := conn.PlayerID()
	ctx := context.Background()
	if err := s.adapter.Heartbeat(ctx, conn.SessionID, playerID); err != nil {
		log.Warn().Err(err).Str("player_id", playerID).Msg("initial heartbeat failed")
	}

	ticker := s.clock.NewTicker(s.cfg.Engine.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.Chan():
			if err := s.adapter.Heartbeat(ctx, conn.SessionID, conn.PlayerID()); err != nil {
				log.Warn().Err(err).Str("player_id", conn.PlayerID()).Msg("heartbeat failed")
			}
		}
	}
}

func (s *Service) handleMessage(conn *Connection, raw []byte) {
	frame, err := ParseClientFrame(raw)
	if err != nil {
		s.cm.SendToConnection(conn, &ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}
	if err := s.dispatch(conn, frame); err != nil {
		s.cm.SendToConnection(conn, &ServerFrame{
			Type:    FrameError,
			Command: frame.Type,
			Error:   err.Error(),
		})
	}
}

// dispatch executes one client command. Guard violations are rejected here
// and never reach the store; the success path sends nothing back beyond the
// next broadcast, because commands have no optimistic echo.
func (s *Service) dispatch(conn *Connection, frame ClientFrame) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sessionID := conn.SessionID
	principal := conn.PlayerID()

	switch frame.Type {
	case CommandJoin:
		lp, err := s.adapter.JoinSession(ctx, sessionID, frame.Name)
		if err != nil {
			return err
		}
		conn.SetPlayerID(lp.ID)
		conn.presenceOnce.Do(func() { go s.presenceLoop(conn) })
		s.cm.SendToConnection(conn, &ServerFrame{Type: FrameJoined, SessionID: sessionID, Player: lp})
		return nil

	case CommandAttach:
		if frame.PlayerID == "" {
			return session.ErrNotJoined
		}
		conn.SetPlayerID(frame.PlayerID)
		conn.presenceOnce.Do(func() { go s.presenceLoop(conn) })
		return nil

	case CommandVote:
		if principal == "" {
			return session.ErrNotJoined
		}
		return s.adapter.CastVote(ctx, sessionID, principal, frame.Vote)

	case CommandReveal:
		v, _ := s.rooms.View(sessionID)
		if err := session.CanReveal(v.Data, principal); err != nil {
			return err
		}
		return s.adapter.RevealVotes(ctx, sessionID)

	case CommandReset:
		v, _ := s.rooms.View(sessionID)
		if err := session.CanReset(v.Data, principal); err != nil {
			return err
		}
		return s.adapter.ResetVotes(ctx, sessionID, v.Data)

	case CommandRemovePlayer:
		v, _ := s.rooms.View(sessionID)
		if err := session.CanRemove(v.Data, principal, frame.PlayerID); err != nil {
			return err
		}
		return s.adapter.RemovePlayer(ctx, sessionID, frame.PlayerID)

	case CommandLeave:
		if principal == "" {
			return nil
		}
		if err := s.adapter.RemovePlayer(ctx, sessionID, principal); err != nil {
			return err
		}
		conn.SetPlayerID("")
		return nil
	}
	return nil
}

// Stats returns statistics about the gateway service.
func (s *Service) Stats() (total int, sessions map[string]int) {
	return s.cm.ConnectionStats()
}
