package pkgservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/morezero/pkgservice-client/pkg/rpc"
)

const watchLogPrefix = "pkgservice:watch"

const unsubscribeTimeout = 5 * time.Second

// DownloadWatch follows the downloads acknowledged by a download
// subscription. Pushes for other download ids are ignored. Progress is
// closed once every acknowledged download completes, when an
// acknowledgment holds no downloads, or when the watch is closed or the
// subscription ends.
type DownloadWatch struct {
	sub      *rpc.Subscription[[]uint64, DownloadProgress]
	progress chan DownloadProgress
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatchDownloads subscribes to download progress of packageID.
func (s *Service) WatchDownloads(ctx context.Context, packageID string) (*DownloadWatch, error) {
	sub, err := rpc.Subscribe(ctx, s.client, DownloadSubscription(packageID))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to downloads of %s: %w", watchLogPrefix, packageID, err)
	}

	w := &DownloadWatch{
		sub:      sub,
		progress: make(chan DownloadProgress, cap(sub.Events())),
		stop:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Progress yields progress of acknowledged downloads.
func (w *DownloadWatch) Progress() <-chan DownloadProgress {
	return w.progress
}

// IDs returns the download ids currently followed. They change when the
// subscription is renewed after a reconnect.
func (w *DownloadWatch) IDs() []uint64 {
	return w.sub.Ack()
}

// Err reports why the underlying subscription ended, if it did.
func (w *DownloadWatch) Err() error {
	return w.sub.Err()
}

// Close unsubscribes and waits for Progress to close.
func (w *DownloadWatch) Close(ctx context.Context) {
	w.stopOnce.Do(func() { close(w.stop) })
	w.sub.Unsubscribe(ctx)
	w.wg.Wait()
}

func (w *DownloadWatch) run() {
	defer w.wg.Done()
	defer w.unsubscribe()
	defer close(w.progress)

	completed := make(map[uint64]bool)
	if len(w.sub.Ack()) == 0 {
		slog.Debug(fmt.Sprintf("%s - no downloads in flight", watchLogPrefix))
		return
	}

	for {
		select {
		case <-w.stop:
			return
		case <-w.sub.Renewed():
			ids := w.sub.Ack()
			if len(ids) == 0 {
				slog.Debug(fmt.Sprintf("%s - no downloads in flight after resubscribe", watchLogPrefix))
				return
			}
			if allDone(ids, completed) {
				return
			}
		case ev, ok := <-w.sub.Events():
			if !ok {
				return
			}
			ids := w.sub.Ack()
			if !slices.Contains(ids, ev.ID) {
				continue
			}
			select {
			case w.progress <- ev:
			case <-w.stop:
				return
			}
			if ev.Complete() {
				completed[ev.ID] = true
			}
			if allDone(ids, completed) {
				return
			}
		}
	}
}

func (w *DownloadWatch) unsubscribe() {
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	w.sub.Unsubscribe(ctx)
}

func allDone(ids []uint64, completed map[uint64]bool) bool {
	for _, id := range ids {
		if !completed[id] {
			return false
		}
	}
	return true
}
