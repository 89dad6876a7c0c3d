package pkgservice

import (
	"context"
	"fmt"

	"github.com/morezero/pkgservice-client/pkg/rpc"
)

const logPrefix = "pkgservice:service"

// Service issues package-service calls over a client.
type Service struct {
	client *rpc.Client
}

// NewService wraps client. The caller keeps ownership of client.
func NewService(client *rpc.Client) *Service {
	return &Service{client: client}
}

// Client returns the underlying client.
func (s *Service) Client() *rpc.Client {
	return s.client
}

// Status returns the install status of packageID.
func (s *Service) Status(ctx context.Context, repoURL, packageID string, target Target) (InstallStatus, error) {
	return rpc.Call(ctx, s.client, StatusRequest(repoURL, packageID, target))
}

// Install starts installing packageID.
func (s *Service) Install(ctx context.Context, repoURL, packageID string, target Target) (InstallStatus, error) {
	return rpc.Call(ctx, s.client, InstallRequest(repoURL, packageID, target))
}

// Uninstall starts removing packageID.
func (s *Service) Uninstall(ctx context.Context, repoURL, packageID string, target Target) (InstallStatus, error) {
	return rpc.Call(ctx, s.client, UninstallRequest(repoURL, packageID, target))
}

// Repository fetches repository metadata.
func (s *Service) Repository(ctx context.Context, repoURL string) (Repository, error) {
	return rpc.Call(ctx, s.client, RepositoryRequest(repoURL))
}

// RepositoryStatuses fetches the state of every package in a repository.
func (s *Service) RepositoryStatuses(ctx context.Context, repoURL string) (map[string]PackageState, error) {
	return rpc.Call(ctx, s.client, RepositoryStatusesRequest(repoURL))
}

// Health asks the service for its health.
func (s *Service) Health(ctx context.Context) (Health, error) {
	return rpc.Call(ctx, s.client, HealthRequest())
}

// UpdatesAvailable lists packages of repoURL whose installed version is
// behind the repository.
func (s *Service) UpdatesAvailable(ctx context.Context, repoURL string) ([]Package, error) {
	repo, err := s.Repository(ctx, repoURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to fetch repository: %w", logPrefix, err)
	}
	states, err := s.RepositoryStatuses(ctx, repoURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to fetch statuses: %w", logPrefix, err)
	}

	var updates []Package
	for _, id := range repo.PackageIDs() {
		state, ok := states[id]
		if !ok || !state.Status.Installed() {
			continue
		}
		latest, _ := repo.Latest(id)
		if state.Status == StatusUpdateAvailable || (state.Version != "" && latest.NewerThan(state.Version)) {
			updates = append(updates, latest)
		}
	}
	return updates, nil
}
