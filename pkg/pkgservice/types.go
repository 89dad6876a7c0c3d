// Package pkgservice is the typed surface of the package service: request
// descriptors for every method, the values they exchange, and a Service
// wrapper over an rpc.Client.
package pkgservice

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/pkgservice-client/pkg/semver"
)

// InstallStatus is the install state of one package for one target.
type InstallStatus string

const (
	StatusNotInstalled    InstallStatus = "notInstalled"
	StatusInstalling      InstallStatus = "installing"
	StatusUpToDate        InstallStatus = "upToDate"
	StatusUpdateAvailable InstallStatus = "updateAvailable"
	StatusUninstalling    InstallStatus = "uninstalling"
	StatusFailed          InstallStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s InstallStatus) Valid() bool {
	switch s {
	case StatusNotInstalled, StatusInstalling, StatusUpToDate,
		StatusUpdateAvailable, StatusUninstalling, StatusFailed:
		return true
	}
	return false
}

// Installed reports whether a version of the package is on disk.
func (s InstallStatus) Installed() bool {
	return s == StatusUpToDate || s == StatusUpdateAvailable || s == StatusUninstalling
}

// Busy reports whether an operation is in progress.
func (s InstallStatus) Busy() bool {
	return s == StatusInstalling || s == StatusUninstalling
}

func (s *InstallStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("install status: %w", err)
	}
	if !InstallStatus(raw).Valid() {
		return fmt.Errorf("install status: unknown value %q", raw)
	}
	*s = InstallStatus(raw)
	return nil
}

// Target is where a package is installed.
type Target string

const (
	TargetSystem Target = "system"
	TargetUser   Target = "user"
)

// Valid reports whether t is a known target.
func (t Target) Valid() bool {
	return t == TargetSystem || t == TargetUser
}

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	t := Target(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown install target %q (want system or user)", s)
	}
	return t, nil
}

func (t *Target) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	parsed, err := ParseTarget(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PackageState is the status and target of one package in a repository.
type PackageState struct {
	Status  InstallStatus `json:"status"`
	Target  Target        `json:"target"`
	Version string        `json:"version,omitempty"`
}

// Package is one entry of a repository.
type Package struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Version        string `json:"version"`
	Size           int64  `json:"size"`
	RebootRequired bool   `json:"rebootRequired,omitempty"`
}

// NewerThan reports whether p is a higher version than version.
func (p Package) NewerThan(version string) bool {
	return semver.IsNewer(p.Version, version)
}

// Repository is the metadata of one package repository.
type Repository struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Packages []Package `json:"packages"`
}

// Latest returns the highest-versioned entry for packageID.
func (r Repository) Latest(packageID string) (Package, bool) {
	var versions []string
	byVersion := make(map[string]Package)
	for _, p := range r.Packages {
		if p.ID != packageID {
			continue
		}
		versions = append(versions, p.Version)
		byVersion[p.Version] = p
	}
	if len(versions) == 0 {
		return Package{}, false
	}
	if latest := semver.Latest(versions); latest != "" {
		return byVersion[latest], true
	}
	return byVersion[versions[0]], true
}

// PackageIDs lists distinct package ids in catalog order.
func (r Repository) PackageIDs() []string {
	seen := make(map[string]bool, len(r.Packages))
	var ids []string
	for _, p := range r.Packages {
		if !seen[p.ID] {
			seen[p.ID] = true
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// DownloadProgress is one download push. On the wire it is the positional
// array [id, current, total]; the object form is accepted too.
type DownloadProgress struct {
	ID      uint64 `json:"id"`
	Current int64  `json:"current"`
	Total   int64  `json:"total"`
}

// Fraction returns completion in [0, 1]. An unknown total reports 0.
func (p DownloadProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Complete reports whether every byte has arrived.
func (p DownloadProgress) Complete() bool {
	return p.Total > 0 && p.Current >= p.Total
}

func (p DownloadProgress) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{p.ID, p.Current, p.Total})
}

func (p *DownloadProgress) UnmarshalJSON(data []byte) error {
	var positional []json.Number
	if err := json.Unmarshal(data, &positional); err == nil {
		if len(positional) != 3 {
			return fmt.Errorf("download progress: want [id, current, total], got %d values", len(positional))
		}
		id, err := parseUint(positional[0])
		if err != nil {
			return fmt.Errorf("download progress id: %w", err)
		}
		current, err := positional[1].Int64()
		if err != nil {
			return fmt.Errorf("download progress current: %w", err)
		}
		total, err := positional[2].Int64()
		if err != nil {
			return fmt.Errorf("download progress total: %w", err)
		}
		*p = DownloadProgress{ID: id, Current: current, Total: total}
		return nil
	}

	type object DownloadProgress
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("download progress: %w", err)
	}
	*p = DownloadProgress(o)
	return nil
}

func parseUint(n json.Number) (uint64, error) {
	v, err := n.Int64()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return uint64(v), nil
}
