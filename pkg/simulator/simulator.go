package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/events"
)

const logPrefix = "simulator:service"

const (
	defaultSteps       = 10
	defaultTick        = 200 * time.Millisecond
	defaultPushTimeout = 5 * time.Second
)

// Config holds simulation settings.
type Config struct {
	// Steps is the number of progress pushes per download.
	Steps int
	// Tick is the delay between progress pushes, and the time an uninstall takes.
	Tick time.Duration
	// PushTimeout bounds one push to one peer.
	PushTimeout time.Duration
	// Version is reported by health.
	Version string
}

// DefaultConfig returns the default simulation settings.
func DefaultConfig() Config {
	return Config{Steps: defaultSteps, Tick: defaultTick, PushTimeout: defaultPushTimeout, Version: "dev"}
}

// Params holds parameters for New.
type Params struct {
	Catalog   *catalog.Catalog
	Store     db.Store
	Publisher events.LifecyclePublisher
	Config    Config
}

// Service is the simulated package service.
type Service struct {
	store     db.Store
	publisher events.LifecyclePublisher
	config    Config

	mu           sync.Mutex
	catalog      *catalog.Catalog
	downloads    map[uint64]*download
	nextDownload uint64
	subscribers  map[string]map[string]Peer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Service. Nil Store and Publisher default to an in-memory
// store and a no-op publisher.
func New(params Params) *Service {
	cfg := params.Config
	if cfg.Steps <= 0 {
		cfg.Steps = defaultSteps
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}

	store := params.Store
	if store == nil {
		store = db.NewMemoryStore()
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	return &Service{
		store:       store,
		publisher:   pub,
		config:      cfg,
		catalog:     params.Catalog,
		downloads:   make(map[uint64]*download),
		subscribers: make(map[string]map[string]Peer),
		done:        make(chan struct{}),
	}
}

// Catalog returns the catalog currently served.
func (s *Service) Catalog() *catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// ReloadCatalog swaps the served catalog and broadcasts repositories_changed.
func (s *Service) ReloadCatalog(ctx context.Context, cat *catalog.Catalog) error {
	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Catalog reloaded: %s %s", logPrefix, cat.Name(), cat.Version()))
	return s.publish(ctx, events.NewLifecycleEvent(events.MethodRepositoriesChanged, "catalog reloaded"))
}

// Close stops in-flight simulations and waits for them. Downloads cut short
// are recorded as failed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Service) publish(ctx context.Context, ev *events.LifecycleEvent) error {
	if err := s.publisher.PublishLifecycle(ctx, ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s: %v", logPrefix, ev.Method, err))
		return fmt.Errorf("%s - failed to publish %s: %w", logPrefix, ev.Method, err)
	}
	return nil
}
