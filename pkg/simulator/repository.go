package simulator

import (
	"context"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

// Repository returns the catalog entry of repoURL.
func (s *Service) Repository(_ context.Context, repoURL string) (*pkgservice.Repository, error) {
	cat := s.Catalog()
	if cat == nil {
		return nil, NewServiceError(CodeInternal, "no catalog loaded")
	}
	repo, ok := cat.Repository(repoURL)
	if !ok {
		return nil, NewServiceError(CodeNotFound, "unknown repository %s", repoURL)
	}
	out := *repo
	out.Packages = append([]pkgservice.Package(nil), repo.Packages...)
	return &out, nil
}

// RepositoryStatuses returns the state of every package of repoURL.
// Packages without an install record are reported as notInstalled.
func (s *Service) RepositoryStatuses(ctx context.Context, repoURL string) (map[string]pkgservice.PackageState, error) {
	repo, err := s.Repository(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	records, err := s.store.List(ctx, repo.URL)
	if err != nil {
		return nil, NewServiceError(CodeInternal, "failed to list install state: %v", err)
	}

	out := make(map[string]pkgservice.PackageState)
	for _, id := range repo.PackageIDs() {
		out[id] = pkgservice.PackageState{Status: pkgservice.StatusNotInstalled, Target: pkgservice.TargetSystem}
	}
	for i := range records {
		rec := &records[i]
		latest, ok := repo.Latest(rec.PackageID)
		if !ok {
			continue
		}
		state := rec.State()
		state.Status = effectiveStatus(rec, latest)
		out[rec.PackageID] = state
	}
	return out, nil
}
