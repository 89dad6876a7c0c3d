package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/morezero/pkgservice-client/internal/config"
	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/dispatcher"
	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/rpc"
	"github.com/morezero/pkgservice-client/pkg/simulator"
	"github.com/morezero/pkgservice-client/pkg/transport"
)

const (
	serverTestPrefix = "server:server_test"
	mainRepo         = "https://packages.example.org/main"
)

func testConfig() *config.Config {
	return &config.Config{
		COMMSName:          "pkgservice-test",
		RequestTimeout:     5 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		DownloadSteps:      4,
		DownloadTick:       10 * time.Millisecond,
		Version:            "test",
	}
}

// localServer returns a Server without NATS, for HTTP and websocket tests.
// Lifecycle events go to websocket peers only.
func localServer(t *testing.T) *Server {
	t.Helper()
	cat, err := catalog.New(catalog.DefaultConfig())
	if err != nil {
		t.Fatalf("%s - catalog: %v", serverTestPrefix, err)
	}
	s := &Server{cfg: testConfig(), hub: newWSHub(), store: db.NewMemoryStore()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.publisher = s.hub
	s.sim = simulator.New(simulator.Params{Catalog: cat, Store: s.store, Publisher: s.hub, Config: s.cfg.SimulatorConfig()})
	s.disp = dispatcher.NewDispatcher(s.sim)
	t.Cleanup(func() {
		s.hub.closeAll()
		s.cancel()
		s.sim.Close()
	})
	return s
}

func TestHandleHealth(t *testing.T) {
	s := localServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d, want 200", serverTestPrefix, rec.Code)
	}
	var h pkgservice.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("%s - decode: %v", serverTestPrefix, err)
	}
	if h.Status != "healthy" || h.Version != "test" {
		t.Errorf("%s - health = %+v", serverTestPrefix, h)
	}
}

func TestHandleReady(t *testing.T) {
	s := localServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready"`) {
		t.Errorf("%s - /ready = %d %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestHandleHome(t *testing.T) {
	s := localServer(t)
	if _, err := db.SeedInstalls(context.Background(), s.store, s.sim.Catalog(), false); err != nil {
		t.Fatalf("%s - seed: %v", serverTestPrefix, err)
	}

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d", serverTestPrefix, rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Package Service", mainRepo, "editor", "updateAvailable", "2.1.0"} {
		if !strings.Contains(body, want) {
			t.Errorf("%s - home page missing %q", serverTestPrefix, want)
		}
	}

	rec = httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - /nope status = %d, want 404", serverTestPrefix, rec.Code)
	}
}

func dialService(t *testing.T, opts transport.Options) *pkgservice.Service {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := transport.Dial(ctx, opts)
	if err != nil {
		t.Fatalf("%s - dial %s: %v", serverTestPrefix, opts.Kind, err)
	}
	client := rpc.NewClient(session, rpc.WithDefaultTimeout(5*time.Second))
	t.Cleanup(func() { client.Close() })
	return pkgservice.NewService(client)
}

func waitForStatus(t *testing.T, svc *pkgservice.Service, packageID string, want pkgservice.InstallStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := svc.Status(context.Background(), mainRepo, packageID, pkgservice.TargetSystem)
		if err == nil && status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s - %s never reached %s", serverTestPrefix, packageID, want)
}

func expectLifecycle(t *testing.T, obs *rpc.LifecycleObserver, want rpc.LifecycleEvent) {
	t.Helper()
	select {
	case ev, ok := <-obs.Events():
		if !ok {
			t.Fatalf("%s - observer closed before %s", serverTestPrefix, want)
		}
		if ev != want {
			t.Errorf("%s - event = %s, want %s", serverTestPrefix, ev, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no %s event", serverTestPrefix, want)
	}
}

func TestWebSocketGateway(t *testing.T) {
	s := localServer(t)
	hs := httptest.NewServer(s.routes())
	defer hs.Close()

	svc := dialService(t, transport.Options{
		Kind: transport.KindWebSocket,
		WS:   transport.WSOptions{URL: "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"},
	})
	ctx := context.Background()
	obs := svc.Client().ObserveLifecycle()
	defer obs.Close()

	repo, err := svc.Repository(ctx, "main")
	if err != nil {
		t.Fatalf("%s - Repository: %v", serverTestPrefix, err)
	}
	if repo.URL != mainRepo || len(repo.PackageIDs()) != 3 {
		t.Errorf("%s - repository = %+v", serverTestPrefix, repo)
	}

	status, err := svc.Install(ctx, mainRepo, "terminal", pkgservice.TargetSystem)
	if err != nil || status != pkgservice.StatusInstalling {
		t.Fatalf("%s - Install = %s, %v", serverTestPrefix, status, err)
	}
	waitForStatus(t, svc, "terminal", pkgservice.StatusUpToDate)

	if err := s.sim.ReloadCatalog(ctx, s.sim.Catalog()); err != nil {
		t.Fatalf("%s - ReloadCatalog: %v", serverTestPrefix, err)
	}
	expectLifecycle(t, obs, rpc.RepositorySetChanged)
}

func startCommsServer(t *testing.T, port int) string {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: port, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", serverTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestServer_OverNATS(t *testing.T) {
	url := startCommsServer(t, 14240)
	cfg := testConfig()
	cfg.COMMSURL = url
	cfg.HTTPPort = 0

	ctx := context.Background()
	s, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("%s - Start: %v", serverTestPrefix, err)
	}
	stopped := false
	t.Cleanup(func() {
		if !stopped {
			s.Shutdown(ctx)
		}
	})

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("%s - GET /health: %v", serverTestPrefix, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("%s - /health status = %d", serverTestPrefix, resp.StatusCode)
	}

	svc := dialService(t, transport.Options{
		Kind: transport.KindNATS,
		NATS: transport.NATSOptions{URL: url, Name: "pkgctl-test"},
	})
	obs := svc.Client().ObserveLifecycle()
	defer obs.Close()

	// The default catalog preinstalls editor 2.0.0 while 2.1.0 is available.
	updates, err := svc.UpdatesAvailable(ctx, mainRepo)
	if err != nil {
		t.Fatalf("%s - UpdatesAvailable: %v", serverTestPrefix, err)
	}
	if len(updates) != 1 || updates[0].ID != "editor" {
		t.Errorf("%s - updates = %+v", serverTestPrefix, updates)
	}

	if _, err := svc.Install(ctx, mainRepo, "drivers", pkgservice.TargetSystem); err != nil {
		t.Fatalf("%s - Install: %v", serverTestPrefix, err)
	}
	waitForStatus(t, svc, "drivers", pkgservice.StatusUpToDate)

	if _, err := svc.Uninstall(ctx, mainRepo, "drivers", pkgservice.TargetSystem); err != nil {
		t.Fatalf("%s - Uninstall: %v", serverTestPrefix, err)
	}
	expectLifecycle(t, obs, rpc.RebootRequired)

	stopped = true
	s.Shutdown(ctx)
	expectLifecycle(t, obs, rpc.ServiceStopping)
}
