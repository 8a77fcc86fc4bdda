package session

import (
	"github.com/mcdev12/scrumdeck/internal/models"
)

// Phase is the round lifecycle state derived from the projection.
type Phase string

const (
	PhaseVoting   Phase = "voting"
	PhaseRevealed Phase = "revealed"
)

// CurrentPhase derives the lifecycle state from an aggregate.
func CurrentPhase(data *models.SessionData) Phase {
	if data != nil && data.Session.VotesRevealed {
		return PhaseRevealed
	}
	return PhaseVoting
}

// HasVotes reports whether at least one player holds a vote. Recomputed from
// the projection on every observation, never cached.
func HasVotes(data *models.SessionData) bool {
	if data == nil {
		return false
	}
	for _, p := range data.Players {
		if p.HasVoted() {
			return true
		}
	}
	return false
}

// VoteCount is one row of the revealed tally.
type VoteCount struct {
	Value models.VoteValue `json:"value"`
	Count int              `json:"count"`
}

// VoteSummary tallies the cast votes in deck display order, omitting values
// nobody picked. While votes are hidden the summary is empty; the tally only
// exists once the round is revealed.
func VoteSummary(data *models.SessionData) []VoteCount {
	if data == nil || !data.Session.VotesRevealed {
		return nil
	}
	counts := make(map[models.VoteValue]int)
	for _, p := range data.Players {
		if p.Vote != nil {
			counts[*p.Vote]++
		}
	}
	var summary []VoteCount
	for _, v := range models.DeckValues {
		if n := counts[v]; n > 0 {
			summary = append(summary, VoteCount{Value: v, Count: n})
		}
	}
	return summary
}

// CanReveal checks the Voting -> Revealed guard: the issuing principal must
// be the session admin and at least one vote must exist. Violations are
// rejected here, at the issuance layer, because the store enforces nothing.
func CanReveal(data *models.SessionData, principalID string) error {
	if data == nil {
		return ErrNotSynced
	}
	if data.Session.AdminID != principalID {
		return ErrUnauthorized
	}
	if data.Session.VotesRevealed {
		return ErrAlreadyRevealed
	}
	if !HasVotes(data) {
		return ErrNothingToReveal
	}
	return nil
}

// CanReset checks the Revealed -> Voting guard: admin only, and there is no
// reset while still voting.
func CanReset(data *models.SessionData, principalID string) error {
	if data == nil {
		return ErrNotSynced
	}
	if data.Session.AdminID != principalID {
		return ErrUnauthorized
	}
	if !data.Session.VotesRevealed {
		return ErrNotRevealed
	}
	return nil
}

// CanRemove checks the removal guard: players remove themselves, the admin
// removes anyone. Both ids must be non-empty; an empty target would address
// the whole players subtree, and an empty principal is a device that never
// joined.
func CanRemove(data *models.SessionData, principalID, targetID string) error {
	if targetID == "" {
		return ErrInvalidPlayer
	}
	if principalID == "" {
		return ErrNotJoined
	}
	if principalID == targetID {
		return nil
	}
	if data == nil {
		return ErrNotSynced
	}
	if data.Session.AdminID != principalID {
		return ErrUnauthorized
	}
	return nil
}
