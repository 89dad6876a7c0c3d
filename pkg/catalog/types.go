// Package catalog provides the repository catalog served by the reference
// package service.
package catalog

import (
	"slices"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/semver"
)

// Preinstall marks a package as installed when the service starts with an
// empty store. Package is a reference such as "editor@2.1.0" or "editor@^2".
type Preinstall struct {
	Repository string            `json:"repository"`
	Package    string            `json:"package"`
	Target     pkgservice.Target `json:"target"`
}

// Config is the root catalog document.
type Config struct {
	Name         string                  `json:"name"`
	Version      string                  `json:"version"`
	Description  string                  `json:"description,omitempty"`
	Repositories []pkgservice.Repository `json:"repositories"`
	Aliases      map[string]string       `json:"aliases,omitempty"`
	Preinstalled []Preinstall            `json:"preinstalled,omitempty"`
}

// Catalog provides lookups over a loaded Config. It is immutable; reloads
// build a new Catalog.
type Catalog struct {
	name         string
	version      string
	repositories map[string]*pkgservice.Repository
	order        []string
	aliases      map[string]string
	preinstalled []Preinstall
}

// Repository returns the repository with the given URL or alias.
func (c *Catalog) Repository(urlOrAlias string) (*pkgservice.Repository, bool) {
	if repo, ok := c.repositories[urlOrAlias]; ok {
		return repo, true
	}
	if url, ok := c.aliases[urlOrAlias]; ok {
		repo, ok := c.repositories[url]
		return repo, ok
	}
	return nil, false
}

// ResolveURL maps an alias to its repository URL. Unknown names are returned
// unchanged.
func (c *Catalog) ResolveURL(urlOrAlias string) string {
	if url, ok := c.aliases[urlOrAlias]; ok {
		return url
	}
	return urlOrAlias
}

// Package picks the version of packageID in the repository that best
// satisfies rangeStr. An empty range selects the latest version.
func (c *Catalog) Package(repoURL, packageID, rangeStr string) (pkgservice.Package, bool) {
	repo, ok := c.Repository(repoURL)
	if !ok {
		return pkgservice.Package{}, false
	}
	var versions []string
	byVersion := make(map[string]pkgservice.Package)
	for _, p := range repo.Packages {
		if p.ID != packageID {
			continue
		}
		versions = append(versions, p.Version)
		byVersion[p.Version] = p
	}
	v := semver.ResolveVersion(versions, rangeStr)
	if v == "" {
		return pkgservice.Package{}, false
	}
	return byVersion[v], true
}

// Find returns the URLs of repositories that publish packageID.
func (c *Catalog) Find(packageID string) []string {
	var urls []string
	for _, url := range c.order {
		if slices.Contains(c.repositories[url].PackageIDs(), packageID) {
			urls = append(urls, url)
		}
	}
	return urls
}

// Repositories returns the repository URLs in catalog order.
func (c *Catalog) Repositories() []string {
	return slices.Clone(c.order)
}

// Preinstalled returns the preinstalled entries.
func (c *Catalog) Preinstalled() []Preinstall {
	return c.preinstalled
}

// Name returns the catalog name.
func (c *Catalog) Name() string {
	return c.name
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}
