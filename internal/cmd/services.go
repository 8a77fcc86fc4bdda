package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/gateway"
	"github.com/mcdev12/scrumdeck/internal/session"
	"github.com/mcdev12/scrumdeck/internal/store"
	"github.com/mcdev12/scrumdeck/internal/store/memstore"
	"github.com/mcdev12/scrumdeck/internal/store/natsstore"
)

// Services holds the wired application components.
type Services struct {
	Store   store.Store
	Gateway *gateway.Service

	closeStore func()
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	st, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engineCfg := session.Config{
		HeartbeatInterval: cfg.heartbeatInterval(),
		Reaper: session.ReaperConfig{
			Enabled:   cfg.Presence.Reaper.Enabled,
			Threshold: time.Duration(cfg.Presence.Reaper.ThresholdSeconds) * time.Second,
			Interval:  time.Duration(cfg.Presence.Reaper.IntervalSeconds) * time.Second,
		},
	}

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.Engine = engineCfg

	return &Services{
		Store:      st,
		Gateway:    gateway.NewService(st, gatewayCfg, clock),
		closeStore: closeStore,
	}, nil
}

func setupStore(ctx context.Context, cfg *Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Info().Msg("using in-memory store")
		return memstore.New(), func() {}, nil
	case "nats":
		natsCfg := natsstore.DefaultConfig()
		natsCfg.URL = cfg.Store.NATS.URL
		natsCfg.Bucket = cfg.Store.NATS.Bucket
		st, err := natsstore.New(ctx, natsCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create NATS store: %w", err)
		}
		log.Info().Str("url", natsCfg.URL).Str("bucket", natsCfg.Bucket).Msg("using NATS store")
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close releases the store connection.
func (s *Services) Close() {
	if s.closeStore != nil {
		s.closeStore()
	}
}
