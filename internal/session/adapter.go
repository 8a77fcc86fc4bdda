package session

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/store"
)

// RootPath is the subtree of the shared store holding every session
// aggregate.
const RootPath = "sessions"

// SessionPath returns the store path of a session's full aggregate.
func SessionPath(sessionID string) string {
	return RootPath + "/" + sessionID
}

func playerPath(sessionID, playerID string) string {
	return SessionPath(sessionID) + "/players/" + playerID
}

// Adapter translates session commands into path-addressed writes against the
// shared reactive store. Commands are fire-and-forget with respect to local
// state: no command mutates a projection, the issuer observes its own effect
// through the next subscription notification like every other device.
type Adapter struct {
	store store.Store
	clock clockwork.Clock
}

// NewAdapter creates a store adapter.
func NewAdapter(st store.Store, clock clockwork.Clock) *Adapter {
	return &Adapter{store: st, clock: clock}
}

// CreateSession allocates a fresh session with a single admin player on
// round 1, votes hidden, and returns the session id along with the admin's
// local credential.
func (a *Adapter) CreateSession(ctx context.Context, adminName string) (string, *models.LocalPlayer, error) {
	if strings.TrimSpace(adminName) == "" {
		return "", nil, ErrInvalidName
	}

	sessionID := newSessionID()
	adminID := newPlayerID(a.clock)
	now := a.clock.Now().UnixMilli()

	data := models.SessionData{
		Session: models.Session{
			ID:            sessionID,
			CreatedAt:     now,
			AdminID:       adminID,
			VotesRevealed: false,
			CurrentRound:  1,
		},
		Players: map[string]models.Player{
			adminID: {
				ID:       adminID,
				Name:     adminName,
				IsAdmin:  true,
				LastSeen: now,
			},
		},
	}

	if err := a.store.Write(ctx, SessionPath(sessionID), data); err != nil {
		return "", nil, wrapStore("create session", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("admin_id", adminID).
		Msg("session created")

	return sessionID, &models.LocalPlayer{ID: adminID, Name: adminName, Role: models.RoleAdmin}, nil
}

// JoinSession adds a new non-admin player with no vote and returns the
// device's credential.
func (a *Adapter) JoinSession(ctx context.Context, sessionID, name string) (*models.LocalPlayer, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	playerID := newPlayerID(a.clock)
	player := models.Player{
		ID:       playerID,
		Name:     name,
		IsAdmin:  false,
		LastSeen: a.clock.Now().UnixMilli(),
	}

	if err := a.store.Write(ctx, playerPath(sessionID, playerID), player); err != nil {
		return nil, wrapStore("join session", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Msg("player joined")

	return &models.LocalPlayer{ID: playerID, Name: name, Role: models.RolePlayer}, nil
}

// CastVote overwrites only the player's vote field. A vote issued before the
// device has joined a session (empty session id) is silently dropped.
func (a *Adapter) CastVote(ctx context.Context, sessionID, playerID string, vote models.VoteValue) error {
	if sessionID == "" {
		return nil
	}
	if !vote.Valid() {
		return ErrInvalidVote
	}
	if err := a.store.Write(ctx, playerPath(sessionID, playerID)+"/vote", vote); err != nil {
		return wrapStore("cast vote", err)
	}
	return nil
}

// RevealVotes flips the session into the revealed phase.
func (a *Adapter) RevealVotes(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := a.store.Write(ctx, SessionPath(sessionID)+"/session/votesRevealed", true); err != nil {
		return wrapStore("reveal votes", err)
	}
	return nil
}

// ResetVotes starts the next round: votes hidden, round incremented, every
// known player's vote cleared, all in one multi-path write. The round
// increment is read-modify-write, so the caller must hold a synced snapshot;
// without one the command no-ops until the first sync arrives. A vote landing
// between the snapshot read and this write is stomped back to absent; that is
// last-write-wins per the store contract.
func (a *Adapter) ResetVotes(ctx context.Context, sessionID string, snapshot *models.SessionData) error {
	if sessionID == "" || snapshot == nil {
		return nil
	}

	writes := map[string]any{
		SessionPath(sessionID) + "/session/votesRevealed": false,
		SessionPath(sessionID) + "/session/currentRound":  snapshot.Session.CurrentRound + 1,
	}
	for playerID := range snapshot.Players {
		writes[playerPath(sessionID, playerID)+"/vote"] = nil
	}

	if err := a.store.MultiWrite(ctx, writes); err != nil {
		return wrapStore("reset votes", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Int("round", snapshot.Session.CurrentRound+1).
		Msg("round reset")
	return nil
}

// RemovePlayer deletes the player's subtree entirely. An empty playerID is
// refused: the path it would address is the whole players map.
func (a *Adapter) RemovePlayer(ctx context.Context, sessionID, playerID string) error {
	if sessionID == "" {
		return nil
	}
	if playerID == "" {
		return ErrInvalidPlayer
	}
	if err := a.store.Delete(ctx, playerPath(sessionID, playerID)); err != nil {
		return wrapStore("remove player", err)
	}
	return nil
}

// Heartbeat refreshes the player's liveness timestamp. It is a signal only;
// the sole consumer in this repo is the optional stale-presence reaper.
func (a *Adapter) Heartbeat(ctx context.Context, sessionID, playerID string) error {
	if sessionID == "" || playerID == "" {
		return nil
	}
	now := a.clock.Now().UnixMilli()
	if err := a.store.Write(ctx, playerPath(sessionID, playerID)+"/lastSeen", now); err != nil {
		return wrapStore("heartbeat", err)
	}
	return nil
}
