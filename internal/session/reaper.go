package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReaperConfig controls stale-presence pruning. Pruning is owned by the
// admin device's engine, the one principal already authorized to remove
// players, and is off unless explicitly enabled.
type ReaperConfig struct {
	Enabled bool
	// Threshold is how old a player's lastSeen may be before the entry is
	// pruned.
	Threshold time.Duration
	// Interval is the sweep period.
	Interval time.Duration
}

// DefaultReaperConfig returns the pruning defaults (disabled).
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Enabled:   false,
		Threshold: 5 * time.Minute,
		Interval:  time.Minute,
	}
}

func (e *Engine) reapLoop(ctx context.Context) {
	cfg := e.cfg.Reaper
	if cfg.Threshold <= 0 || cfg.Interval <= 0 {
		d := DefaultReaperConfig()
		if cfg.Threshold <= 0 {
			cfg.Threshold = d.Threshold
		}
		if cfg.Interval <= 0 {
			cfg.Interval = d.Interval
		}
	}

	ticker := e.clock.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.reapStale(ctx, cfg.Threshold)
		}
	}
}

// reapStale removes every non-admin player whose lastSeen is older than the
// threshold. The admin entry and the engine's own player are never pruned.
// Returns how many removals were issued.
func (e *Engine) reapStale(ctx context.Context, threshold time.Duration) int {
	v := e.View()
	if v.Data == nil {
		return 0
	}

	cutoff := e.clock.Now().Add(-threshold).UnixMilli()
	removed := 0
	for playerID, p := range v.Data.Players {
		if p.IsAdmin || (e.local != nil && playerID == e.local.ID) {
			continue
		}
		if p.LastSeen >= cutoff {
			continue
		}
		if err := e.adapter.RemovePlayer(ctx, e.sessionID, playerID); err != nil {
			log.Warn().Err(err).
				Str("session_id", e.sessionID).
				Str("player_id", playerID).
				Msg("failed to prune stale player")
			continue
		}
		removed++
		log.Info().
			Str("session_id", e.sessionID).
			Str("player_id", playerID).
			Int64("last_seen", p.LastSeen).
			Msg("pruned stale player")
	}
	return removed
}
