package kq

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// WidgetFamily is a widget size. Each family refreshes on its own schedule.
type WidgetFamily string

const (
	FamilySmall  WidgetFamily = "small"
	FamilyMedium WidgetFamily = "medium"
	FamilyLarge  WidgetFamily = "large"
)

// DefaultRefreshInterval returns the built-in refresh period of f.
func (f WidgetFamily) DefaultRefreshInterval() time.Duration {
	switch f {
	case FamilyMedium:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// ParseWidgetFamily accepts "small", "medium" or "large".
func ParseWidgetFamily(s string) (WidgetFamily, error) {
	switch f := WidgetFamily(s); f {
	case FamilySmall, FamilyMedium, FamilyLarge:
		return f, nil
	default:
		return "", fmt.Errorf("unknown widget family %q (want small, medium or large)", s)
	}
}

// Entry is one renderable timeline entry.
type Entry struct {
	Date          time.Time
	Snapshot      *Snapshot
	IsPlaceholder bool
}

// Timeline is the schedule handed to the widget host: the entries to show and
// the earliest time the host should ask again.
type Timeline struct {
	Entries     []Entry
	ReloadAfter time.Time
}

// SnapshotProvider is the consumer side of the shared-snapshot contract.
// It keeps no state between calls; every entry is built from a fresh read.
type SnapshotProvider struct {
	store    SharedStore
	key      string
	family   WidgetFamily
	interval time.Duration
	logger   Logger
}

// NewSnapshotProvider creates a provider reading SnapshotKey from store.
// A zero interval uses the family's default refresh period.
func NewSnapshotProvider(store SharedStore, family WidgetFamily, interval time.Duration, logger Logger) *SnapshotProvider {
	if interval <= 0 {
		interval = family.DefaultRefreshInterval()
	}
	return &SnapshotProvider{
		store:    store,
		key:      SnapshotKey,
		family:   family,
		interval: interval,
		logger:   logger,
	}
}

// Family returns the widget family this provider serves.
func (p *SnapshotProvider) Family() WidgetFamily { return p.family }

// Interval returns the refresh period.
func (p *SnapshotProvider) Interval() time.Duration { return p.interval }

// Load reads and decodes the current snapshot, reporting why it could not.
func (p *SnapshotProvider) Load(ctx context.Context) (*Snapshot, error) {
	if p.store == nil {
		return nil, ErrStoreUnavailable
	}
	data, ok, err := p.store.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrSnapshotMissing
	}
	if !utf8.Valid(data) {
		return nil, ErrSnapshotNotText
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotMalformed, err)
	}
	return s, nil
}

// LoadSnapshot returns the current snapshot or nil. Failures are logged
// and never returned.
func (p *SnapshotProvider) LoadSnapshot(ctx context.Context) *Snapshot {
	s, err := p.Load(ctx)
	if err == nil {
		return s
	}
	switch {
	case errors.Is(err, ErrSnapshotMissing):
		p.logger.Debug("no snapshot written yet", "key", p.key)
	case errors.Is(err, ErrStoreUnavailable):
		p.logger.Warn("shared store unavailable", "key", p.key, "error", err)
	case errors.Is(err, ErrSnapshotNotText):
		p.logger.Warn("snapshot is not text", "key", p.key)
	default:
		p.logger.Warn("failed to decode snapshot", "key", p.key, "error", err)
	}
	return nil
}

// Placeholder returns the mock snapshot shown while no data exists.
func (p *SnapshotProvider) Placeholder() *Snapshot { return Placeholder() }

// NextEntry pairs now with the real snapshot, or the placeholder if none
// can be loaded.
func (p *SnapshotProvider) NextEntry(ctx context.Context, now time.Time) Entry {
	if s := p.LoadSnapshot(ctx); s != nil {
		return Entry{Date: now, Snapshot: s}
	}
	return Entry{Date: now, Snapshot: Placeholder(), IsPlaceholder: true}
}

// RefreshPolicy returns the earliest time the host should request a new
// timeline.
func (p *SnapshotProvider) RefreshPolicy(now time.Time) time.Time {
	return now.Add(p.interval)
}

// Timeline builds a single-entry timeline for now.
func (p *SnapshotProvider) Timeline(ctx context.Context, now time.Time) Timeline {
	return Timeline{
		Entries:     []Entry{p.NextEntry(ctx, now)},
		ReloadAfter: p.RefreshPolicy(now),
	}
}

// SnapshotForContext returns the entry for a one-off snapshot request.
// Preview contexts, such as the widget gallery, always get the placeholder.
func (p *SnapshotProvider) SnapshotForContext(ctx context.Context, now time.Time, preview bool) Entry {
	if preview {
		return Entry{Date: now, Snapshot: Placeholder(), IsPlaceholder: true}
	}
	return p.NextEntry(ctx, now)
}

// Watch emits a timeline immediately, then again whenever the refresh
// deadline passes or a reload is requested, whichever comes first. It returns
// when ctx is done.
func (p *SnapshotProvider) Watch(ctx context.Context, clock Clock, reload <-chan struct{}, emit func(Timeline)) error {
	for {
		tl := p.Timeline(ctx, clock.Now())
		emit(tl)

		wait := tl.ReloadAfter.Sub(clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case _, ok := <-reload:
			timer.Stop()
			if !ok {
				reload = nil
			}
			p.logger.Debug("timeline reload requested", "family", string(p.family))
		}
	}
}
