package models

// VoteValue is one card of the estimation deck. It is an opaque label with a
// fixed display order; no arithmetic is ever performed on it.
type VoteValue string

const (
	Vote0       VoteValue = "0"
	Vote1       VoteValue = "1"
	Vote2       VoteValue = "2"
	Vote3       VoteValue = "3"
	Vote5       VoteValue = "5"
	Vote8       VoteValue = "8"
	Vote13      VoteValue = "13"
	Vote21      VoteValue = "21"
	VoteUnknown VoteValue = "?"
	VoteBreak   VoteValue = "☕"
)

// DeckValues is the voting deck in display order: the modified Fibonacci
// scale plus the "unknown" and "need a break" sentinels.
var DeckValues = []VoteValue{
	Vote0, Vote1, Vote2, Vote3, Vote5, Vote8, Vote13, Vote21, VoteUnknown, VoteBreak,
}

// Valid reports whether v is a member of the deck.
func (v VoteValue) Valid() bool {
	for _, d := range DeckValues {
		if v == d {
			return true
		}
	}
	return false
}

// UserRole defines the role a device holds within a session.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RolePlayer UserRole = "player"
)

// Player is one participant's entry in the shared aggregate. Vote is nil
// whenever the player has not voted in the current round; a nil vote is not
// the same thing as the "0" card. Timestamps are unix milliseconds so the
// aggregate serializes the same way on every device.
type Player struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Vote     *VoteValue `json:"vote,omitempty"`
	IsAdmin  bool       `json:"isAdmin"`
	LastSeen int64      `json:"lastSeen"`
}

// HasVoted reports whether the player holds a vote in the current round.
func (p Player) HasVoted() bool {
	return p.Vote != nil
}

// Session holds the round-level fields of an estimation session. AdminID
// names the creator, the only principal intended to reveal or reset.
// CurrentRound starts at 1 and strictly increases by one on every reset.
type Session struct {
	ID            string `json:"id"`
	CreatedAt     int64  `json:"createdAt"`
	AdminID       string `json:"adminId"`
	VotesRevealed bool   `json:"votesRevealed"`
	CurrentRound  int    `json:"currentRound"`
}

// SessionData is the shared aggregate and the unit of subscription: every
// device observes the entire aggregate on every change to any part of it.
type SessionData struct {
	Session Session           `json:"session"`
	Players map[string]Player `json:"players"`
}

// Admin returns the session's admin player entry, if present.
func (d *SessionData) Admin() (Player, bool) {
	p, ok := d.Players[d.Session.AdminID]
	return p, ok
}

// LocalPlayer is the device-local credential proving which Player entry in
// the shared aggregate this device is authorized to mutate. It is never
// written to the shared store.
type LocalPlayer struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}
