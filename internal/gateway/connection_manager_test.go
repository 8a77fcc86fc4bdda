package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

// newPoolConn builds a registered pool entry without a real socket. Tests
// using it must stay away from the pumps and the slow-connection eviction
// path, both of which touch the underlying websocket.
func newPoolConn(cm *ConnectionManager, sessionID string) *Connection {
	conn := &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Send:      make(chan []byte, 8),
		Manager:   cm,
		done:      make(chan struct{}),
	}
	cm.registerConnection(conn)
	return conn
}

func recvFrame(t *testing.T, conn *Connection) *ServerFrame {
	t.Helper()
	select {
	case raw := <-conn.Send:
		var frame ServerFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return &frame
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestConnectionStats(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	a := newPoolConn(cm, "s1")
	newPoolConn(cm, "s1")
	newPoolConn(cm, "s2")

	total, sessions := cm.ConnectionStats()
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if sessions["s1"] != 2 || sessions["s2"] != 1 {
		t.Errorf("sessions = %v", sessions)
	}

	cm.unregisterConnection(a)
	total, sessions = cm.ConnectionStats()
	if total != 2 || sessions["s1"] != 1 {
		t.Errorf("after unregister: total = %d, sessions = %v", total, sessions)
	}

	select {
	case <-a.Done():
	default:
		t.Error("done not closed on unregister")
	}

	// Unregistering twice is harmless.
	cm.unregisterConnection(a)
}

func TestUnregisterLastConnectionDropsPool(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := newPoolConn(cm, "s1")
	cm.unregisterConnection(conn)

	if _, sessions := cm.ConnectionStats(); len(sessions) != 0 {
		t.Errorf("empty pool retained: %v", sessions)
	}
}

func TestHandleBroadcastPoolIsolation(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	a := newPoolConn(cm, "s1")
	b := newPoolConn(cm, "s1")
	other := newPoolConn(cm, "s2")

	cm.handleBroadcast(BroadcastMessage{
		SessionID: "s1",
		Frame:     &ServerFrame{Type: FrameState, SessionID: "s1"},
	})

	for _, conn := range []*Connection{a, b} {
		frame := recvFrame(t, conn)
		if frame.Type != FrameState || frame.SessionID != "s1" {
			t.Errorf("frame = %+v", frame)
		}
	}
	if len(other.Send) != 0 {
		t.Error("broadcast leaked into another session's pool")
	}
}

func TestHandleBroadcastUnknownSession(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	// No pool for the session: silently dropped.
	cm.handleBroadcast(BroadcastMessage{
		SessionID: "ghost",
		Frame:     &ServerFrame{Type: FrameState},
	})
}

func TestSendToConnection(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := newPoolConn(cm, "s1")

	cm.SendToConnection(conn, &ServerFrame{Type: FrameError, Error: "nope"})
	frame := recvFrame(t, conn)
	if frame.Type != FrameError || frame.Error != "nope" {
		t.Errorf("frame = %+v", frame)
	}

	// A dead connection with a full buffer must not block the sender.
	full := &Connection{
		ID:        uuid.New().String(),
		SessionID: "s1",
		Send:      make(chan []byte),
		Manager:   cm,
		done:      make(chan struct{}),
	}
	close(full.done)
	cm.SendToConnection(full, &ServerFrame{Type: FrameError, Error: "dropped"})
}

func TestSetPlayerID(t *testing.T) {
	conn := &Connection{done: make(chan struct{})}
	if conn.PlayerID() != "" {
		t.Errorf("fresh connection player id = %q, want empty", conn.PlayerID())
	}
	conn.SetPlayerID("player_1_abc")
	if conn.PlayerID() != "player_1_abc" {
		t.Errorf("player id = %q", conn.PlayerID())
	}
}
