package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/semver"
)

const logPrefix = "catalog:loader"

// EnvCatalogFile names the catalog file when no explicit path is given.
const EnvCatalogFile = "PKGSVC_CATALOG_FILE"

// LoadConfig loads the catalog from the first readable, parseable file.
// Explicit paths are tried first, then PKGSVC_CATALOG_FILE, then
// config/catalog.json and catalog.json. The built-in default is the fallback.
func LoadConfig(paths ...string) (*Config, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvCatalogFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/catalog.json", "catalog.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse catalog file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded catalog from %s", logPrefix, p))
		return &cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default catalog", logPrefix))
	return DefaultConfig(), nil
}

// Load loads and resolves the catalog.
func Load(paths ...string) (*Catalog, error) {
	cfg, err := LoadConfig(paths...)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// DefaultConfig returns the built-in catalog.
func DefaultConfig() *Config {
	const mainURL = "https://packages.example.org/main"
	const extrasURL = "https://packages.example.org/extras"
	return &Config{
		Name:        "default-catalog",
		Version:     "1.0.0",
		Description: "Built-in catalog for local development",
		Repositories: []pkgservice.Repository{
			{
				URL:  mainURL,
				Name: "main",
				Packages: []pkgservice.Package{
					{ID: "editor", Name: "Editor", Description: "Text editor", Version: "2.0.0", Size: 4 << 20},
					{ID: "editor", Name: "Editor", Description: "Text editor", Version: "2.1.0", Size: 4 << 20},
					{ID: "terminal", Name: "Terminal", Description: "Terminal emulator", Version: "1.4.2", Size: 2 << 20},
					{ID: "drivers", Name: "Drivers", Description: "Hardware drivers", Version: "5.0.1", Size: 16 << 20, RebootRequired: true},
				},
			},
			{
				URL:  extrasURL,
				Name: "extras",
				Packages: []pkgservice.Package{
					{ID: "games", Name: "Games", Description: "Casual games", Version: "0.9.0", Size: 32 << 20},
				},
			},
		},
		Aliases: map[string]string{
			"main":   mainURL,
			"extras": extrasURL,
		},
		Preinstalled: []Preinstall{
			{Repository: mainURL, Package: "editor@2.0.0", Target: pkgservice.TargetSystem},
		},
	}
}

// New validates cfg and builds a Catalog.
func New(cfg *Config) (*Catalog, error) {
	c := &Catalog{
		name:         cfg.Name,
		version:      cfg.Version,
		repositories: make(map[string]*pkgservice.Repository, len(cfg.Repositories)),
		aliases:      make(map[string]string, len(cfg.Aliases)),
	}

	for _, repo := range cfg.Repositories {
		if repo.URL == "" {
			return nil, fmt.Errorf("%s - repository %q has no url", logPrefix, repo.Name)
		}
		if _, dup := c.repositories[repo.URL]; dup {
			return nil, fmt.Errorf("%s - duplicate repository %s", logPrefix, repo.URL)
		}
		for _, p := range repo.Packages {
			if !semver.ValidatePackageID(p.ID) {
				return nil, fmt.Errorf("%s - repository %s has invalid package id %q", logPrefix, repo.URL, p.ID)
			}
			if !semver.Valid(p.Version) {
				return nil, fmt.Errorf("%s - package %s in %s has invalid version %q", logPrefix, p.ID, repo.URL, p.Version)
			}
		}
		r := repo
		r.Packages = append([]pkgservice.Package(nil), repo.Packages...)
		c.repositories[repo.URL] = &r
		c.order = append(c.order, repo.URL)
	}

	for alias, url := range cfg.Aliases {
		if _, ok := c.repositories[url]; !ok {
			return nil, fmt.Errorf("%s - alias %s points at unknown repository %s", logPrefix, alias, url)
		}
		c.aliases[alias] = url
	}

	for _, pre := range cfg.Preinstalled {
		ref, err := semver.ParsePackageRef(pre.Package)
		if err != nil {
			return nil, fmt.Errorf("%s - preinstalled %q: %w", logPrefix, pre.Package, err)
		}
		if _, ok := c.Package(pre.Repository, ref.ID, ref.Range); !ok {
			return nil, fmt.Errorf("%s - preinstalled %s not found in %s", logPrefix, pre.Package, pre.Repository)
		}
		if pre.Target == "" {
			pre.Target = pkgservice.TargetSystem
		}
		pre.Repository = c.ResolveURL(pre.Repository)
		c.preinstalled = append(c.preinstalled, pre)
	}

	return c, nil
}

// MergeConfigs overlays override onto base. Repositories are replaced by
// URL, aliases by name, and preinstalled entries are appended.
func MergeConfigs(base, override *Config) *Config {
	merged := *base

	merged.Repositories = append([]pkgservice.Repository(nil), base.Repositories...)
	for _, repo := range override.Repositories {
		replaced := false
		for i := range merged.Repositories {
			if merged.Repositories[i].URL == repo.URL {
				merged.Repositories[i] = repo
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Repositories = append(merged.Repositories, repo)
		}
	}

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for alias, url := range base.Aliases {
		merged.Aliases[alias] = url
	}
	for alias, url := range override.Aliases {
		merged.Aliases[alias] = url
	}

	merged.Preinstalled = append(append([]Preinstall(nil), base.Preinstalled...), override.Preinstalled...)
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}
