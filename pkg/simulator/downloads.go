package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/morezero/pkgservice-client/pkg/db"
	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

const downloadsLogPrefix = "simulator:downloads"

// MethodDownload is the progress push method.
const MethodDownload = "download"

const defaultDownloadSize = 1 << 20

type download struct {
	id      uint64
	repoURL string
	pkg     pkgservice.Package
	target  pkgservice.Target
	total   int64
}

func (s *Service) startDownload(repoURL string, pkg pkgservice.Package, target pkgservice.Target) *download {
	total := pkg.Size
	if total <= 0 {
		total = defaultDownloadSize
	}

	s.mu.Lock()
	s.nextDownload++
	d := &download{id: s.nextDownload, repoURL: repoURL, pkg: pkg, target: target, total: total}
	s.downloads[d.id] = d
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runDownload(d)
	return d
}

func (s *Service) runDownload(d *download) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	steps := int64(s.config.Steps)
	for i := int64(1); i <= steps; i++ {
		select {
		case <-ticker.C:
		case <-s.done:
			s.finishDownload(d, pkgservice.StatusFailed)
			return
		}
		current := d.total * i / steps
		s.broadcastProgress(d.pkg.ID, pkgservice.DownloadProgress{ID: d.id, Current: current, Total: d.total})
	}
	s.finishDownload(d, pkgservice.StatusUpToDate)
}

func (s *Service) finishDownload(d *download, status pkgservice.InstallStatus) {
	s.mu.Lock()
	delete(s.downloads, d.id)
	s.mu.Unlock()

	rec := db.InstallRecord{RepositoryURL: d.repoURL, PackageID: d.pkg.ID, Target: d.target, Status: status}
	if status == pkgservice.StatusUpToDate {
		rec.Version = d.pkg.Version
	}
	if err := s.store.Put(context.Background(), rec); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to record %s for %s: %v", downloadsLogPrefix, status, d.pkg.ID, err))
		return
	}
	slog.Info(fmt.Sprintf("%s - Download %d of %s finished: %s", downloadsLogPrefix, d.id, d.pkg.ID, status))
}

func (s *Service) broadcastProgress(packageID string, p pkgservice.DownloadProgress) {
	s.mu.Lock()
	peers := make([]Peer, 0, len(s.subscribers[packageID]))
	for _, peer := range s.subscribers[packageID] {
		peers = append(peers, peer)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.PushTimeout)
		if err := peer.Push(ctx, MethodDownload, p); err != nil {
			slog.Warn(fmt.Sprintf("%s - push to %s failed: %v", downloadsLogPrefix, peer.ID(), err))
		}
		cancel()
	}
}

// DownloadSubscribe registers peer for progress of packageID and returns the
// ids of its downloads in flight.
func (s *Service) DownloadSubscribe(peer Peer, packageID string) ([]uint64, error) {
	cat := s.Catalog()
	if cat == nil || len(cat.Find(packageID)) == 0 {
		return nil, NewServiceError(CodeNotFound, "unknown package %s", packageID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	peers, ok := s.subscribers[packageID]
	if !ok {
		peers = make(map[string]Peer)
		s.subscribers[packageID] = peers
	}
	peers[peer.ID()] = peer

	ids := []uint64{}
	for id, d := range s.downloads {
		if d.pkg.ID == packageID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	slog.Debug(fmt.Sprintf("%s - %s subscribed to %s, in flight %v", downloadsLogPrefix, peer.ID(), packageID, ids))
	return ids, nil
}

// DownloadUnsubscribe stops progress of packageID for peer.
func (s *Service) DownloadUnsubscribe(peer Peer, packageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peers, ok := s.subscribers[packageID]; ok {
		delete(peers, peer.ID())
		if len(peers) == 0 {
			delete(s.subscribers, packageID)
		}
	}
}

// DropPeer forgets every subscription of a disconnected peer.
func (s *Service) DropPeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for packageID, peers := range s.subscribers {
		delete(peers, peerID)
		if len(peers) == 0 {
			delete(s.subscribers, packageID)
		}
	}
}

// Downloads returns the number of downloads in flight.
func (s *Service) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.downloads)
}
