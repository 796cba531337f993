package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Watcher periodically scans a Ring and logs the occupied records, the
// in-process counterpart of the external observer that would poll the
// shared-memory segment. Purely diagnostic; it never mutates the ring.
type Watcher struct {
	ring     *Ring
	logger   *slog.Logger
	interval time.Duration
}

// NewWatcher builds a Watcher that logs ring's snapshot every interval.
func NewWatcher(ring *Ring, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{ring: ring, logger: logger, interval: interval}
}

// Run drives the periodic scan loop until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.scan()
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) scan() {
	records := w.ring.Snapshot()
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		w.logger.Debug("session_activity",
			"ipc_key", w.ring.Key(),
			"user", rec.Username,
			"command", rec.Command,
			"download_speed", rec.DownloadSpeed,
			"upload_speed", rec.UploadSpeed,
		)
	}
	w.logger.Info("online_sessions", "ipc_key", w.ring.Key(), "count", len(records))
}
