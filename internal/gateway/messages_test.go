package gateway

import (
	"errors"
	"testing"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/session"
)

func TestParseClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ClientFrame
		wantErr bool
	}{
		{
			name: "join",
			raw:  `{"type":"join","name":"Alice"}`,
			want: ClientFrame{Type: CommandJoin, Name: "Alice"},
		},
		{
			name: "attach",
			raw:  `{"type":"attach","player_id":"player_1_abc"}`,
			want: ClientFrame{Type: CommandAttach, PlayerID: "player_1_abc"},
		},
		{
			name: "vote",
			raw:  `{"type":"vote","vote":"5"}`,
			want: ClientFrame{Type: CommandVote, Vote: models.Vote5},
		},
		{
			name: "coffee vote",
			raw:  `{"type":"vote","vote":"☕"}`,
			want: ClientFrame{Type: CommandVote, Vote: models.VoteBreak},
		},
		{
			name: "reveal",
			raw:  `{"type":"reveal"}`,
			want: ClientFrame{Type: CommandReveal},
		},
		{
			name: "reset",
			raw:  `{"type":"reset"}`,
			want: ClientFrame{Type: CommandReset},
		},
		{
			name: "remove player",
			raw:  `{"type":"remove_player","player_id":"p2"}`,
			want: ClientFrame{Type: CommandRemovePlayer, PlayerID: "p2"},
		},
		{
			name: "leave",
			raw:  `{"type":"leave"}`,
			want: ClientFrame{Type: CommandLeave},
		},
		{
			name:    "unknown type",
			raw:     `{"type":"shuffle"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			raw:     `{"name":"Alice"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientFrame([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClientFrame(%s) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientFrame(%s): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseClientFrame(%s) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStateFrameLoading(t *testing.T) {
	frame := stateFrame("s1", session.View{State: session.StateLoading})
	if frame.Type != FrameState || frame.SessionID != "s1" {
		t.Errorf("frame = %+v", frame)
	}
	if frame.SessionData != nil || frame.Summary != nil || frame.Error != "" {
		t.Errorf("loading frame carries data: %+v", frame)
	}
	if frame.ConnectionState != session.StateLoading {
		t.Errorf("connection state = %q, want loading", frame.ConnectionState)
	}
}

func TestStateFrameRevealedCarriesSummary(t *testing.T) {
	v := models.Vote8
	data := &models.SessionData{
		Session: models.Session{ID: "s1", VotesRevealed: true, CurrentRound: 1},
		Players: map[string]models.Player{
			"p1": {ID: "p1", Vote: &v},
		},
	}
	frame := stateFrame("s1", session.View{Data: data, State: session.StateSynced})

	if len(frame.Summary) != 1 || frame.Summary[0] != (session.VoteCount{Value: models.Vote8, Count: 1}) {
		t.Errorf("summary = %v, want single count of 8", frame.Summary)
	}
}

func TestStateFrameHiddenVotesHaveNoSummary(t *testing.T) {
	v := models.Vote8
	data := &models.SessionData{
		Session: models.Session{ID: "s1", CurrentRound: 1},
		Players: map[string]models.Player{"p1": {ID: "p1", Vote: &v}},
	}
	frame := stateFrame("s1", session.View{Data: data, State: session.StateSynced})
	if frame.Summary != nil {
		t.Errorf("summary before reveal = %v, want nil", frame.Summary)
	}
}

func TestStateFrameErrored(t *testing.T) {
	frame := stateFrame("s1", session.View{State: session.StateErrored, Err: errors.New("store down")})
	if frame.ConnectionState != session.StateErrored || frame.Error != "store down" {
		t.Errorf("frame = %+v", frame)
	}
}
