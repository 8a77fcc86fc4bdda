package session

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const idSuffixLen = 9

// newPlayerID allocates a player id that is collision-resistant across
// concurrent joiners with no coordination: a millisecond timestamp plus a
// random base36 suffix.
func newPlayerID(clock clockwork.Clock) string {
	suffix := make([]byte, idSuffixLen)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("player_%d_%s", clock.Now().UnixMilli(), suffix)
}

// newSessionID allocates a fresh session id.
func newSessionID() string {
	return uuid.NewString()
}
