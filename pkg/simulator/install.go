package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/events"
	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

const installLogPrefix = "simulator:install"

// Status reports the install status of packageID for target.
func (s *Service) Status(ctx context.Context, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error) {
	repoURL, pkg, err := s.lookup(repoURL, packageID)
	if err != nil {
		return "", err
	}
	if !target.Valid() {
		return "", NewServiceError(CodeInvalidArgument, "invalid target %q", target)
	}

	rec, err := s.record(ctx, repoURL, packageID)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.Target != target {
		return pkgservice.StatusNotInstalled, nil
	}
	return effectiveStatus(rec, pkg), nil
}

// Install starts a simulated install. A package already being installed or
// removed reports its current status, as does one already up to date.
func (s *Service) Install(ctx context.Context, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error) {
	repoURL, pkg, err := s.lookup(repoURL, packageID)
	if err != nil {
		return "", err
	}
	if !target.Valid() {
		return "", NewServiceError(CodeInvalidArgument, "invalid target %q", target)
	}

	rec, err := s.record(ctx, repoURL, packageID)
	if err != nil {
		return "", err
	}
	if rec != nil {
		if status := effectiveStatus(rec, pkg); status.Busy() || status == pkgservice.StatusUpToDate {
			return status, nil
		}
	}

	if err := s.store.Put(ctx, db.InstallRecord{
		RepositoryURL: repoURL,
		PackageID:     packageID,
		Target:        target,
		Status:        pkgservice.StatusInstalling,
	}); err != nil {
		return "", NewServiceError(CodeInternal, "failed to record install: %v", err)
	}

	d := s.startDownload(repoURL, pkg, target)
	slog.Info(fmt.Sprintf("%s - Installing %s@%s from %s as download %d", installLogPrefix, packageID, pkg.Version, repoURL, d.id))
	return pkgservice.StatusInstalling, nil
}

// Uninstall starts a simulated removal.
func (s *Service) Uninstall(ctx context.Context, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error) {
	repoURL, pkg, err := s.lookup(repoURL, packageID)
	if err != nil {
		return "", err
	}
	if !target.Valid() {
		return "", NewServiceError(CodeInvalidArgument, "invalid target %q", target)
	}

	rec, err := s.record(ctx, repoURL, packageID)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.Target != target {
		return pkgservice.StatusNotInstalled, nil
	}
	if rec.Status.Busy() {
		return rec.Status, nil
	}

	rec.Status = pkgservice.StatusUninstalling
	rec.Modified = time.Time{}
	if err := s.store.Put(ctx, *rec); err != nil {
		return "", NewServiceError(CodeInternal, "failed to record uninstall: %v", err)
	}

	s.wg.Add(1)
	go s.finishUninstall(repoURL, pkg)
	return pkgservice.StatusUninstalling, nil
}

func (s *Service) finishUninstall(repoURL string, pkg pkgservice.Package) {
	defer s.wg.Done()

	timer := time.NewTimer(s.config.Tick)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.done:
	}

	ctx := context.Background()
	if err := s.store.Delete(ctx, repoURL, pkg.ID); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to remove %s: %v", installLogPrefix, pkg.ID, err))
		return
	}
	slog.Info(fmt.Sprintf("%s - Uninstalled %s", installLogPrefix, pkg.ID))

	if pkg.RebootRequired {
		ev := events.NewLifecycleEvent(events.MethodRebootRequired, "package removed")
		ev.PackageID = pkg.ID
		s.publish(ctx, ev)
	}
}

// lookup resolves the repository alias and the latest catalog entry.
func (s *Service) lookup(repoURL, packageID string) (string, pkgservice.Package, error) {
	cat := s.Catalog()
	if cat == nil {
		return "", pkgservice.Package{}, NewServiceError(CodeInternal, "no catalog loaded")
	}
	if _, ok := cat.Repository(repoURL); !ok {
		return "", pkgservice.Package{}, NewServiceError(CodeNotFound, "unknown repository %s", repoURL)
	}
	pkg, ok := cat.Package(repoURL, packageID, "")
	if !ok {
		return "", pkgservice.Package{}, NewServiceError(CodeNotFound, "package %s not found in %s", packageID, repoURL)
	}
	return cat.ResolveURL(repoURL), pkg, nil
}

func (s *Service) record(ctx context.Context, repoURL, packageID string) (*db.InstallRecord, error) {
	rec, err := s.store.Get(ctx, repoURL, packageID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewServiceError(CodeInternal, "failed to read install state: %v", err)
	}
	return rec, nil
}

// effectiveStatus reports updateAvailable for an installed package the
// catalog has a newer version of.
func effectiveStatus(rec *db.InstallRecord, latest pkgservice.Package) pkgservice.InstallStatus {
	if rec.Status == pkgservice.StatusUpToDate && latest.NewerThan(rec.Version) {
		return pkgservice.StatusUpdateAvailable
	}
	return rec.Status
}
