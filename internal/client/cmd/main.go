package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/client"
	"github.com/mcdev12/scrumdeck/internal/identity"
	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store/natsstore"
)

func main() {
	sessionID := flag.String("session", "", "session id to join")
	name := flag.String("name", "", "display name")
	create := flag.Bool("create", false, "create a new session instead of joining")
	natsURL := flag.String("nats-url", "", "NATS server URL (defaults to NATS_URL or localhost)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "-name is required")
		os.Exit(1)
	}
	if !*create && *sessionID == "" {
		fmt.Fprintln(os.Stderr, "-session is required unless -create is set")
		os.Exit(1)
	}

	storeCfg := natsstore.DefaultConfig()
	switch {
	case *natsURL != "":
		storeCfg.URL = *natsURL
	case os.Getenv("NATS_URL") != "":
		storeCfg.URL = os.Getenv("NATS_URL")
	}
	if bucket := os.Getenv("NATS_BUCKET"); bucket != "" {
		storeCfg.Bucket = bucket
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := natsstore.New(ctx, storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()

	keyringPath, err := identity.DefaultPath()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve keyring path")
	}

	c := client.New(st, identity.NewKeyring(keyringPath), client.Config{
		SessionID: *sessionID,
		Name:      *name,
		Create:    *create,
		Engine:    session.DefaultConfig(),
	}, clockwork.NewRealClock())

	if err := c.Attach(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to attach to session")
	}
	fmt.Printf("session %s\ncommands: vote <value> | reveal | reset | remove <player-id> | leave | quit\n", c.SessionID())

	if err := c.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("client stopped")
	}
}
