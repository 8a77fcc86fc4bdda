// Package client is a terminal device for an estimation session: it attaches
// the local credential, runs the synchronization engine against the shared
// store, and turns stdin lines into session commands.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/identity"
	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store"
)

// Config holds the device's intent: which session, under what name, and
// whether to create it first.
type Config struct {
	SessionID string
	Name      string
	Create    bool
	Engine    session.Config
}

// Client binds one device to one session.
type Client struct {
	store   store.Store
	keyring *identity.Keyring
	clock   clockwork.Clock
	cfg     Config

	engine *session.Engine
}

// New creates an unattached client.
func New(st store.Store, kr *identity.Keyring, cfg Config, clock clockwork.Clock) *Client {
	return &Client{store: st, keyring: kr, clock: clock, cfg: cfg}
}

// SessionID returns the session the client is bound to, valid after Attach.
func (c *Client) SessionID() string {
	return c.cfg.SessionID
}

// Attach resolves the device credential: create the session, reuse the
// keyring entry from a previous run, or join fresh. The credential is saved
// before the engine starts so a crash between the two does not orphan the
// player entry.
func (c *Client) Attach(ctx context.Context) error {
	adapter := session.NewAdapter(c.store, c.clock)

	var local *models.LocalPlayer
	switch {
	case c.cfg.Create:
		sessionID, lp, err := adapter.CreateSession(ctx, c.cfg.Name)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		c.cfg.SessionID = sessionID
		local = lp

	default:
		lp, err := c.keyring.Load(c.cfg.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load credential: %w", err)
		}
		if lp == nil {
			lp, err = adapter.JoinSession(ctx, c.cfg.SessionID, c.cfg.Name)
			if err != nil {
				return fmt.Errorf("failed to join session: %w", err)
			}
		}
		local = lp
	}

	if err := c.keyring.Save(c.cfg.SessionID, *local); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	engine, err := session.NewEngine(c.store, c.cfg.SessionID, local, c.cfg.Engine, c.clock)
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

// Run drives the attached engine and the command loop until the input ends,
// the user leaves, or the context is cancelled.
func (c *Client) Run(ctx context.Context, input io.Reader, out io.Writer) error {
	if c.engine == nil {
		return session.ErrNotJoined
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := c.engine.Run(ctx); err != nil {
			log.Error().Err(err).Msg("engine stopped")
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-c.engine.Updates():
				c.render(out, v)
			}
		}
	}()

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		done, err := c.execute(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}

// execute runs one command line. It returns true when the loop should end.
func (c *Client) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "vote":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: vote <value>")
		}
		return false, c.engine.CastVote(ctx, models.VoteValue(fields[1]))

	case "reveal":
		return false, c.engine.Reveal(ctx)

	case "reset":
		return false, c.engine.Reset(ctx)

	case "remove":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: remove <player-id>")
		}
		return false, c.engine.RemovePlayer(ctx, fields[1])

	case "leave":
		if err := c.engine.Leave(ctx); err != nil {
			return false, err
		}
		if err := c.keyring.Discard(c.cfg.SessionID); err != nil {
			return false, err
		}
		return true, nil

	case "quit":
		// Keeps the credential; a later run re-attaches as the same player.
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

// render prints one projection. Votes are shown only once revealed; before
// that each player just reads voted or waiting.
func (c *Client) render(out io.Writer, v session.View) {
	switch {
	case v.State == session.StateLoading:
		fmt.Fprintln(out, "loading...")
		return
	case v.State == session.StateErrored:
		fmt.Fprintf(out, "connection error: %v\n", v.Err)
		return
	case v.SessionMissing():
		fmt.Fprintln(out, "session not found")
		return
	}

	data := v.Data
	fmt.Fprintf(out, "round %d (%s)\n", data.Session.CurrentRound, session.CurrentPhase(data))

	ids := make([]string, 0, len(data.Players))
	for id := range data.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := data.Players[id]
		marker := " "
		if p.IsAdmin {
			marker = "*"
		}
		switch {
		case data.Session.VotesRevealed && p.HasVoted():
			fmt.Fprintf(out, "%s %s: %s\n", marker, p.Name, *p.Vote)
		case p.HasVoted():
			fmt.Fprintf(out, "%s %s: voted\n", marker, p.Name)
		default:
			fmt.Fprintf(out, "%s %s: waiting\n", marker, p.Name)
		}
	}

	if summary := session.VoteSummary(data); summary != nil {
		parts := make([]string, 0, len(summary))
		for _, vc := range summary {
			parts = append(parts, fmt.Sprintf("%s x%d", vc.Value, vc.Count))
		}
		fmt.Fprintf(out, "summary: %s\n", strings.Join(parts, ", "))
	}
}
