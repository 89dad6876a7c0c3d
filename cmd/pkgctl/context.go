package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/morezero/pkgservice-client/internal/config"
	"github.com/morezero/pkgservice-client/internal/logging"
	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/dispatcher"
	"github.com/morezero/pkgservice-client/pkg/events"
	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/rpc"
	"github.com/morezero/pkgservice-client/pkg/simulator"
	"github.com/morezero/pkgservice-client/pkg/transport"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const logPrefix = "pkgctl:context"

type commandContext struct {
	repo      string
	target    string
	timeout   time.Duration
	transport string

	config *config.Config
}

func (c *commandContext) ensureConfig(logOut io.Writer) (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.transport != "" {
		cfg.Transport = c.transport
	}
	if c.timeout > 0 {
		cfg.RequestTimeout = c.timeout
	}
	if err := cfg.ValidateForClient(); err != nil {
		return nil, err
	}
	logging.Setup(logOut, cfg.LogLevel)
	c.config = cfg
	return cfg, nil
}

func (c *commandContext) targetValue() (pkgservice.Target, error) {
	return pkgservice.ParseTarget(c.target)
}

// withService connects to the configured service, runs fn and closes the client.
func (c *commandContext) withService(ctx context.Context, fn func(*pkgservice.Service) error) error {
	session, closeEmbedded, err := c.dial(ctx)
	if err != nil {
		return err
	}
	client := rpc.NewClient(session, c.config.ClientOptions()...)
	defer func() {
		client.Close()
		closeEmbedded()
	}()
	return fn(pkgservice.NewService(client))
}

func (c *commandContext) dial(ctx context.Context) (transport.Session, func(), error) {
	if c.config.Transport == config.TransportEmbedded {
		return c.dialEmbedded()
	}
	session, err := transport.Dial(ctx, c.config.TransportOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to package service: %w", err)
	}
	return session, func() {}, nil
}

// dialEmbedded runs a simulated service in process behind a pipe. It starts
// from the catalog's preinstalled packages and keeps no state across runs.
func (c *commandContext) dialEmbedded() (transport.Session, func(), error) {
	cat, err := catalog.Load(c.config.CatalogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	store := db.NewMemoryStore()
	if _, err := db.SeedInstalls(context.Background(), store, cat, false); err != nil {
		return nil, nil, fmt.Errorf("seed installs: %w", err)
	}

	pipe, peer := transport.NewPipe(max(c.config.SubscriptionBuffer, 16))
	pub := events.NewCallbackPublisher(func(ctx context.Context, ev *events.LifecycleEvent) error {
		data, err := wire.EncodePush(ev.Method, ev.Params())
		if err != nil {
			return err
		}
		return peer.Deliver(ctx, data)
	})
	sim := simulator.New(simulator.Params{Catalog: cat, Store: store, Publisher: pub, Config: c.config.SimulatorConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		dispatcher.ServePipe(ctx, dispatcher.NewDispatcher(sim), peer)
	}()
	slog.Debug(fmt.Sprintf("%s - embedded service started with catalog %s", logPrefix, cat.Name()))

	return pipe, func() {
		cancel()
		<-served
		sim.Close()
	}, nil
}
