package kq

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SnapshotPublisher is the producer side of the shared-snapshot contract.
type SnapshotPublisher struct {
	store  SharedStore
	center *TimelineCenter
	logger Logger
}

// NewSnapshotPublisher creates a publisher. center may be nil.
func NewSnapshotPublisher(store SharedStore, center *TimelineCenter, logger Logger) *SnapshotPublisher {
	return &SnapshotPublisher{store: store, center: center, logger: logger}
}

// Publish replaces the shared document with s. There is no retry; a failed
// write leaves the previous document in place.
func (p *SnapshotPublisher) Publish(ctx context.Context, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	data, err := EncodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := p.store.Set(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if p.center != nil {
		p.center.ReloadAllTimelines()
	}
	p.logger.Info("published snapshot", "calories", s.Calories.Current, "streak", s.Streak)
	return nil
}

// Goals are the daily targets a built snapshot is measured against.
type Goals struct {
	Calories int
	Protein  int
	Carbs    int
	Fats     int
}

// DefaultGoals mirror the targets widgets assume when no data exists.
func DefaultGoals() Goals {
	return Goals{Calories: 2500, Protein: 150, Carbs: 300, Fats: 80}
}

// streakLookbackDays bounds how far back BuildSnapshot searches for a streak.
const streakLookbackDays = 365

// SnapshotBuilder derives a snapshot from logged health samples.
type SnapshotBuilder struct {
	health HealthStore
	goals  Goals
	clock  Clock
}

func NewSnapshotBuilder(health HealthStore, goals Goals, clock Clock) *SnapshotBuilder {
	return &SnapshotBuilder{health: health, goals: goals, clock: clock}
}

// BuildSnapshot summarizes day's intake. foods is copied into TodayFoods
// in the given order.
func (b *SnapshotBuilder) BuildSnapshot(ctx context.Context, day time.Time, foods []FoodItem) (*Snapshot, error) {
	start := startOfDay(day)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	total := func(m Metric) (int, error) {
		samples, err := b.health.Query(ctx, m, start, end)
		if err != nil {
			return 0, fmt.Errorf("querying %s: %w", m, err)
		}
		var sum float64
		for _, s := range samples {
			sum += s.Value
		}
		return int(math.Round(sum)), nil
	}

	calories, err := total(MetricEnergy)
	if err != nil {
		return nil, err
	}
	protein, err := total(MetricProtein)
	if err != nil {
		return nil, err
	}
	carbs, err := total(MetricCarbohydrate)
	if err != nil {
		return nil, err
	}
	fats, err := total(MetricFat)
	if err != nil {
		return nil, err
	}

	streak, err := b.streak(ctx, start)
	if err != nil {
		return nil, err
	}

	macro := func(current, target int) MacroProgress {
		return MacroProgress{Current: current, Target: target, Progress: Progress(current, target)}
	}

	items := make([]FoodItem, len(foods))
	copy(items, foods)

	return &Snapshot{
		Calories: CalorieSummary{
			Current:   calories,
			Target:    b.goals.Calories,
			Progress:  Progress(calories, b.goals.Calories),
			Remaining: b.goals.Calories - calories,
		},
		Macros: MacroSummary{
			Protein: macro(protein, b.goals.Protein),
			Carbs:   macro(carbs, b.goals.Carbs),
			Fats:    macro(fats, b.goals.Fats),
		},
		Streak:      streak,
		LastUpdated: b.clock.Now().UTC().Format(time.RFC3339),
		TodayFoods:  items,
	}, nil
}

// streak counts consecutive days ending at day whose energy total is within
// the calorie goal. If day itself has nothing logged yet the count ends at
// the previous day.
func (b *SnapshotBuilder) streak(ctx context.Context, day time.Time) (int, error) {
	from := day.AddDate(0, 0, -streakLookbackDays)
	to := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	samples, err := b.health.Query(ctx, MetricEnergy, from, to)
	if err != nil {
		return 0, fmt.Errorf("querying energy history: %w", err)
	}

	totals := make(map[string]float64)
	for _, s := range samples {
		totals[s.Start.In(day.Location()).Format(time.DateOnly)] += s.Value
	}

	met := func(d time.Time) bool {
		t := totals[d.Format(time.DateOnly)]
		return t > 0 && (b.goals.Calories <= 0 || t <= float64(b.goals.Calories))
	}

	cursor := day
	if totals[day.Format(time.DateOnly)] == 0 {
		cursor = day.AddDate(0, 0, -1)
	}
	n := 0
	for n < streakLookbackDays && met(cursor) {
		n++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return n, nil
}
