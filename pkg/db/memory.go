package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	repo, pkg string
}

// MemoryStore keeps install records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]InstallRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]InstallRecord)}
}

func (m *MemoryStore) Get(_ context.Context, repoURL, packageID string) (*InstallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{repoURL, packageID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) Put(_ context.Context, rec InstallRecord) error {
	if rec.Modified.IsZero() {
		rec.Modified = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.RepositoryURL, rec.PackageID}] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, repoURL, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, recordKey{repoURL, packageID})
	return nil
}

func (m *MemoryStore) List(_ context.Context, repoURL string) ([]InstallRecord, error) {
	m.mu.RLock()
	out := make([]InstallRecord, 0, len(m.records))
	for k, rec := range m.records {
		if repoURL == "" || k.repo == repoURL {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RepositoryURL != out[j].RepositoryURL {
			return out[i].RepositoryURL < out[j].RepositoryURL
		}
		return out[i].PackageID < out[j].PackageID
	})
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Clear removes every record.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[recordKey]InstallRecord)
}
