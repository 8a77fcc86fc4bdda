package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store/memstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(memstore.New(), DefaultConfig(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.Handler().RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func createSession(t *testing.T, server *httptest.Server, name string) createSessionResponse {
	t.Helper()
	body, _ := json.Marshal(createSessionRequest{Name: name})
	resp, err := http.Post(server.URL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created
}

// dialSession opens a device WebSocket. playerID may be empty for a device
// that has not joined yet.
func dialSession(t *testing.T, server *httptest.Server, sessionID, playerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/session?session_id=" + sessionID
	if playerID != "" {
		url += "&player_id=" + playerID
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// waitFrame reads frames until the predicate matches. State broadcasts
// interleave with command acknowledgements, so every reader scans.
func waitFrame(t *testing.T, ws *websocket.Conn, pred func(*ServerFrame) bool) *ServerFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for frame: %v", err)
		}
		var frame ServerFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if pred(&frame) {
			return &frame
		}
	}
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame ClientFrame) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("send %s frame: %v", frame.Type, err)
	}
}

func TestCreateSessionEndpoint(t *testing.T) {
	server := newTestServer(t)

	created := createSession(t, server, "Alice")
	if created.SessionID == "" {
		t.Error("empty session id")
	}
	if created.Player.Role != models.RoleAdmin || created.Player.Name != "Alice" {
		t.Errorf("player = %+v, want admin Alice", created.Player)
	}

	// Blank name is rejected.
	resp, err := http.Post(server.URL+"/api/sessions", "application/json", strings.NewReader(`{"name":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", resp.StatusCode)
	}

	// Only POST is served.
	resp, err = http.Get(server.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestSessionConnectionRequiresSessionID(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws/session")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFullRoundOverWebSocket(t *testing.T) {
	server := newTestServer(t)
	created := createSession(t, server, "Alice")
	sessionID := created.SessionID

	adminWS := dialSession(t, server, sessionID, created.Player.ID)
	waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.ConnectionState == session.StateSynced && f.SessionData != nil
	})

	// Second device joins over the socket.
	bobWS := dialSession(t, server, sessionID, "")
	sendFrame(t, bobWS, ClientFrame{Type: CommandJoin, Name: "Bob"})
	joined := waitFrame(t, bobWS, func(f *ServerFrame) bool { return f.Type == FrameJoined })
	if joined.Player == nil || joined.Player.Role != models.RolePlayer {
		t.Fatalf("joined frame = %+v", joined)
	}
	bobID := joined.Player.ID

	// Both devices see both players.
	twoPlayers := func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && len(f.SessionData.Players) == 2
	}
	waitFrame(t, adminWS, twoPlayers)
	waitFrame(t, bobWS, twoPlayers)

	sendFrame(t, adminWS, ClientFrame{Type: CommandVote, Vote: models.Vote5})
	sendFrame(t, bobWS, ClientFrame{Type: CommandVote, Vote: models.Vote8})

	bothVoted := func(f *ServerFrame) bool {
		if f.Type != FrameState || f.SessionData == nil {
			return false
		}
		a, b := f.SessionData.Players[created.Player.ID], f.SessionData.Players[bobID]
		return a.HasVoted() && b.HasVoted()
	}
	waitFrame(t, adminWS, bothVoted)
	waitFrame(t, bobWS, bothVoted)

	// Non-admin reveal is rejected, and only the issuer hears about it.
	sendFrame(t, bobWS, ClientFrame{Type: CommandReveal})
	rejection := waitFrame(t, bobWS, func(f *ServerFrame) bool { return f.Type == FrameError })
	if rejection.Command != CommandReveal || rejection.Error == "" {
		t.Errorf("rejection frame = %+v", rejection)
	}

	sendFrame(t, adminWS, ClientFrame{Type: CommandReveal})
	revealed := waitFrame(t, bobWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && f.SessionData.Session.VotesRevealed
	})
	want := []session.VoteCount{{Value: models.Vote5, Count: 1}, {Value: models.Vote8, Count: 1}}
	if len(revealed.Summary) != 2 || revealed.Summary[0] != want[0] || revealed.Summary[1] != want[1] {
		t.Errorf("summary = %v, want %v", revealed.Summary, want)
	}

	waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && f.SessionData.Session.VotesRevealed
	})
	sendFrame(t, adminWS, ClientFrame{Type: CommandReset})
	roundTwo := func(f *ServerFrame) bool {
		if f.Type != FrameState || f.SessionData == nil {
			return false
		}
		s := f.SessionData.Session
		if s.CurrentRound != 2 || s.VotesRevealed {
			return false
		}
		for _, p := range f.SessionData.Players {
			if p.HasVoted() {
				return false
			}
		}
		return true
	}
	waitFrame(t, adminWS, roundTwo)
	waitFrame(t, bobWS, roundTwo)
}

func TestVoteBeforeJoinIsRejected(t *testing.T) {
	server := newTestServer(t)
	created := createSession(t, server, "Alice")

	ws := dialSession(t, server, created.SessionID, "")
	sendFrame(t, ws, ClientFrame{Type: CommandVote, Vote: models.Vote5})

	rejection := waitFrame(t, ws, func(f *ServerFrame) bool { return f.Type == FrameError })
	if rejection.Command != CommandVote {
		t.Errorf("rejection frame = %+v", rejection)
	}
}

func TestRemovePlayerWithoutIDIsRejected(t *testing.T) {
	server := newTestServer(t)
	created := createSession(t, server, "Alice")
	sessionID := created.SessionID

	adminWS := dialSession(t, server, sessionID, created.Player.ID)

	bobWS := dialSession(t, server, sessionID, "")
	sendFrame(t, bobWS, ClientFrame{Type: CommandJoin, Name: "Bob"})
	waitFrame(t, bobWS, func(f *ServerFrame) bool { return f.Type == FrameJoined })
	waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && len(f.SessionData.Players) == 2
	})

	// A remove frame with no player_id must not touch the players subtree,
	// from a joined device or from one that never joined.
	freshWS := dialSession(t, server, sessionID, "")
	for _, ws := range []*websocket.Conn{adminWS, freshWS} {
		sendFrame(t, ws, ClientFrame{Type: CommandRemovePlayer})
		rejection := waitFrame(t, ws, func(f *ServerFrame) bool { return f.Type == FrameError })
		if rejection.Command != CommandRemovePlayer {
			t.Errorf("rejection frame = %+v", rejection)
		}
	}

	sendFrame(t, adminWS, ClientFrame{Type: CommandVote, Vote: models.Vote5})
	state := waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && f.SessionData.Players[created.Player.ID].HasVoted()
	})
	if len(state.SessionData.Players) != 2 {
		t.Errorf("players = %d after rejected removals, want 2", len(state.SessionData.Players))
	}
}

func TestLeaveRemovesOwnPlayer(t *testing.T) {
	server := newTestServer(t)
	created := createSession(t, server, "Alice")
	sessionID := created.SessionID

	adminWS := dialSession(t, server, sessionID, created.Player.ID)

	bobWS := dialSession(t, server, sessionID, "")
	sendFrame(t, bobWS, ClientFrame{Type: CommandJoin, Name: "Bob"})
	joined := waitFrame(t, bobWS, func(f *ServerFrame) bool { return f.Type == FrameJoined })
	bobID := joined.Player.ID

	waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && len(f.SessionData.Players) == 2
	})

	sendFrame(t, bobWS, ClientFrame{Type: CommandLeave})
	gone := waitFrame(t, adminWS, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && len(f.SessionData.Players) == 1
	})
	if _, ok := gone.SessionData.Players[bobID]; ok {
		t.Error("left player still present")
	}
}

func TestMalformedFrameGetsErrorNotDisconnect(t *testing.T) {
	server := newTestServer(t)
	created := createSession(t, server, "Alice")

	ws := dialSession(t, server, created.SessionID, created.Player.ID)
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFrame(t, ws, func(f *ServerFrame) bool { return f.Type == FrameError })

	// The connection is still usable afterwards.
	sendFrame(t, ws, ClientFrame{Type: CommandVote, Vote: models.Vote1})
	waitFrame(t, ws, func(f *ServerFrame) bool {
		return f.Type == FrameState && f.SessionData != nil && f.SessionData.Players[created.Player.ID].HasVoted()
	})
}
