package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/session"
)

// CommandType identifies a client command frame.
type CommandType string

const (
	CommandJoin         CommandType = "join"
	CommandAttach       CommandType = "attach" // resume with a held credential
	CommandVote         CommandType = "vote"
	CommandReveal       CommandType = "reveal"
	CommandReset        CommandType = "reset"
	CommandRemovePlayer CommandType = "remove_player"
	CommandLeave        CommandType = "leave"
)

// ClientFrame is one command sent by a device over its WebSocket. Identity is
// self-asserted: the frame names the player the device claims to be, matching
// the mutually-trusting model of the shared store.
type ClientFrame struct {
	Type     CommandType      `json:"type"`
	Name     string           `json:"name,omitempty"`
	PlayerID string           `json:"player_id,omitempty"`
	Vote     models.VoteValue `json:"vote,omitempty"`
}

// ParseClientFrame decodes and validates a raw client message.
func ParseClientFrame(raw []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch frame.Type {
	case CommandJoin, CommandAttach, CommandVote, CommandReveal, CommandReset, CommandRemovePlayer, CommandLeave:
		return frame, nil
	default:
		return ClientFrame{}, fmt.Errorf("unknown command type %q", frame.Type)
	}
}

// FrameType identifies a server frame.
type FrameType string

const (
	// FrameState carries the full projection; sent on every store
	// notification and once when a connection registers.
	FrameState FrameType = "state"
	// FrameJoined acknowledges a join/attach with the player credential.
	FrameJoined FrameType = "joined"
	// FrameError reports a rejected command to the issuer only.
	FrameError FrameType = "error"
)

// ServerFrame is one message pushed to a device.
type ServerFrame struct {
	Type            FrameType            `json:"type"`
	SessionID       string               `json:"session_id,omitempty"`
	SessionData     *models.SessionData  `json:"session_data,omitempty"`
	ConnectionState session.ConnState    `json:"connection_state,omitempty"`
	Summary         []session.VoteCount  `json:"summary,omitempty"`
	Player          *models.LocalPlayer  `json:"player,omitempty"`
	Command         CommandType          `json:"command,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// stateFrame renders an engine view as the wire frame every subscriber gets.
func stateFrame(sessionID string, v session.View) *ServerFrame {
	frame := &ServerFrame{
		Type:            FrameState,
		SessionID:       sessionID,
		SessionData:     v.Data,
		ConnectionState: v.State,
		Summary:         session.VoteSummary(v.Data),
	}
	if v.Err != nil {
		frame.Error = v.Err.Error()
	}
	return frame
}
