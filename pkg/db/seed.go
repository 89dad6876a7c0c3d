package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/pkgservice-client/pkg/catalog"
	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/semver"
)

const seedLogPrefix = "db:seed"

// SeedInstalls records the catalog's preinstalled packages as up to date.
// Existing records are left alone unless overwrite is set. It returns the
// number of records written.
func SeedInstalls(ctx context.Context, store Store, cat *catalog.Catalog, overwrite bool) (int, error) {
	pre := cat.Preinstalled()
	if len(pre) == 0 {
		slog.Info(fmt.Sprintf("%s - no preinstalled packages to seed", seedLogPrefix))
		return 0, nil
	}

	written := 0
	for _, entry := range pre {
		ref, err := semver.ParsePackageRef(entry.Package)
		if err != nil {
			return written, fmt.Errorf("%s - %w", seedLogPrefix, err)
		}
		pkg, ok := cat.Package(entry.Repository, ref.ID, ref.Range)
		if !ok {
			slog.Warn(fmt.Sprintf("%s - skip %s: not in %s", seedLogPrefix, entry.Package, entry.Repository))
			continue
		}

		if !overwrite {
			_, err := store.Get(ctx, entry.Repository, ref.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return written, fmt.Errorf("%s - lookup %s: %w", seedLogPrefix, ref.ID, err)
			}
		}

		rec := InstallRecord{
			RepositoryURL: entry.Repository,
			PackageID:     ref.ID,
			Target:        entry.Target,
			Status:        pkgservice.StatusUpToDate,
			Version:       pkg.Version,
		}
		if err := store.Put(ctx, rec); err != nil {
			return written, fmt.Errorf("%s - seed %s: %w", seedLogPrefix, ref.ID, err)
		}
		written++
	}

	slog.Info(fmt.Sprintf("%s - seeded %d preinstalled packages", seedLogPrefix, written))
	return written, nil
}
