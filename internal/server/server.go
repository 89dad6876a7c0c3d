// Package server orchestrates the simulated package service: NATS request
// handling, install store, simulator, dispatcher, websocket gateway and HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/pkgservice-client/internal/config"
	"github.com/morezero/pkgservice-client/internal/logging"
	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/commsutil"
	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/dispatcher"
	"github.com/morezero/pkgservice-client/pkg/events"
	"github.com/morezero/pkgservice-client/pkg/simulator"
)

const logPrefix = "server:server"

// Server is the simulated package service orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	store      db.Store
	sim        *simulator.Service
	disp       *dispatcher.Dispatcher
	hub        *wsHub
	publisher  events.LifecyclePublisher
	requestSub *comms.Subscription
	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to NATS and the install store, seeds preinstalled packages
// and subscribes to the request subject. Call Start to open the HTTP
// endpoints and Shutdown to release everything.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, hub: newWSHub()}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Step 1: Load catalog
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("%s - failed to load catalog: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Serving catalog %s %s with %d repositories", logPrefix, cat.Name(), cat.Version(), len(cat.Repositories())))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 3: Open install store and seed preinstalled packages
	if err := s.openStore(ctx); err != nil {
		s.close()
		return nil, err
	}
	if _, err := db.SeedInstalls(ctx, s.store, cat, false); err != nil {
		s.close()
		return nil, fmt.Errorf("%s - failed to seed installs: %w", logPrefix, err)
	}

	// Step 4: Create simulator publishing lifecycle events on the bus and to websocket peers
	s.publisher = events.MultiPublisher{
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{EventsSubject: cfg.EventsSubject}),
		s.hub,
	}
	s.sim = simulator.New(simulator.Params{
		Catalog:   cat,
		Store:     s.store,
		Publisher: s.publisher,
		Config:    cfg.SimulatorConfig(),
	})
	s.disp = dispatcher.NewDispatcher(s.sim)

	// Step 5: Subscribe to requests
	subject := cfg.RequestSubject
	if subject == "" {
		subject = commsutil.SubjectRequests
	}
	sub, err := nc.Subscribe(subject, s.handleRequest)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	s.requestSub = sub
	if err := nc.Flush(); err != nil {
		s.close()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return s, nil
}

func (s *Server) openStore(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, using in-memory install store", logPrefix))
		s.store = db.NewMemoryStore()
		return nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(db.FindMigrationDir(s.cfg.MigrationPath))
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.store = db.NewPGStore(pool)
	return nil
}

// Start opens the HTTP listener serving /health, /ready, /ws and the status page.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.routes()}

	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	slog.Info(fmt.Sprintf("%s - Package service is ready", logPrefix))
	return nil
}

// Addr returns the HTTP listen address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Reload reloads the catalog and broadcasts repositories_changed.
func (s *Server) Reload(ctx context.Context) error {
	cat, err := catalog.Load(s.cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("%s - failed to reload catalog: %w", logPrefix, err)
	}
	return s.sim.ReloadCatalog(ctx, cat)
}

// Shutdown broadcasts service_stopping, stops taking requests and releases
// every resource.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.MethodServiceStopping, "shutdown")); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to announce shutdown: %v", logPrefix, err))
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	s.hub.closeAll()
	s.close()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}

func (s *Server) close() {
	if s.requestSub != nil {
		s.requestSub.Unsubscribe()
	}
	s.cancel()
	if s.sim != nil {
		s.sim.Close()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
// SIGHUP reloads the catalog.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	logging.Setup(os.Stdout, cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting package service simulator", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		s.Shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			slog.Info(fmt.Sprintf("%s - Received SIGHUP, reloading catalog", logPrefix))
			if err := s.Reload(ctx); err != nil {
				slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
			}
			continue
		}
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
		break
	}

	s.Shutdown(ctx)
	return nil
}
