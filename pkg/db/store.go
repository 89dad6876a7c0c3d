// Package db persists package install state for the reference service.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

// ErrNotFound is returned when no install record exists.
var ErrNotFound = errors.New("db: install record not found")

// InstallRecord is the persisted state of one package in one repository.
type InstallRecord struct {
	RepositoryURL string                   `json:"repository_url"`
	PackageID     string                   `json:"package_id"`
	Target        pkgservice.Target        `json:"target"`
	Status        pkgservice.InstallStatus `json:"status"`
	Version       string                   `json:"version,omitempty"`
	Modified      time.Time                `json:"modified"`
}

// State converts the record to its wire form.
func (r InstallRecord) State() pkgservice.PackageState {
	return pkgservice.PackageState{Status: r.Status, Target: r.Target, Version: r.Version}
}

// Store is the install-state persistence used by the simulator.
type Store interface {
	Get(ctx context.Context, repoURL, packageID string) (*InstallRecord, error)
	Put(ctx context.Context, rec InstallRecord) error
	Delete(ctx context.Context, repoURL, packageID string) error
	// List returns the records of repoURL, or of every repository when repoURL is empty.
	List(ctx context.Context, repoURL string) ([]InstallRecord, error)
	Ping(ctx context.Context) error
}
