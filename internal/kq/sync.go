package kq

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// DefaultSyncInterval is how often SnapshotSync copies the app's document
// into the shared namespace.
const DefaultSyncInterval = 7 * time.Second

// SnapshotSync copies the snapshot the app shell keeps in its private store
// into the shared namespace and asks widgets to reload when it changed.
type SnapshotSync struct {
	app    SharedStore
	shared SharedStore
	center *TimelineCenter
	logger Logger
}

func NewSnapshotSync(app, shared SharedStore, center *TimelineCenter, logger Logger) *SnapshotSync {
	return &SnapshotSync{app: app, shared: shared, center: center, logger: logger}
}

// SyncOnce copies AppSnapshotKey to SnapshotKey. It reports whether the
// shared value changed. A missing source key is not an error.
func (s *SnapshotSync) SyncOnce(ctx context.Context) (bool, error) {
	data, ok, err := s.app.Get(ctx, AppSnapshotKey)
	if err != nil {
		return false, fmt.Errorf("reading app snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}

	current, ok, err := s.shared.Get(ctx, SnapshotKey)
	if err != nil {
		return false, fmt.Errorf("reading shared snapshot: %w", err)
	}
	if ok && bytes.Equal(current, data) {
		return false, nil
	}

	if err := s.shared.Set(ctx, SnapshotKey, data); err != nil {
		return false, fmt.Errorf("writing shared snapshot: %w", err)
	}
	if s.center != nil {
		s.center.ReloadAllTimelines()
	}
	s.logger.Info("synced snapshot to shared store", "bytes", len(data))
	return true, nil
}

// Run syncs immediately and then every interval until ctx is done.
// Failed rounds are logged and retried on the next tick.
func (s *SnapshotSync) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if _, err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("snapshot sync failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("snapshot sync failed", "error", err)
			}
		}
	}
}
