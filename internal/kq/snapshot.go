package kq

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultNamespace is the app-group namespace shared by the app and its widgets.
	DefaultNamespace = "group.com.kaloriq.shared"

	// SnapshotKey is the shared-store key holding the current snapshot document.
	SnapshotKey = "widgetData"

	// AppSnapshotKey is where the app shell persists the document in its
	// private preferences before it is copied into the shared namespace.
	AppSnapshotKey = "CapacitorStorage.widgetData"
)

// Snapshot is the nutrition summary the app writes for its widgets.
// It is replaced wholesale on every write and never mutated by readers.
type Snapshot struct {
	Calories    CalorieSummary `json:"calories"`
	Macros      MacroSummary   `json:"macros"`
	Streak      int            `json:"streak"`
	LastUpdated string         `json:"lastUpdated"`
	TodayFoods  []FoodItem     `json:"todayFoods"`
}

// CalorieSummary is today's energy intake against the daily goal.
// Progress is stored as written by the producer and may exceed 1.
type CalorieSummary struct {
	Current   int     `json:"current"`
	Target    int     `json:"target"`
	Progress  float64 `json:"progress"`
	Remaining int     `json:"remaining"`
}

// DisplayProgress is Progress clamped to [0, 1] for bounded visuals.
func (c CalorieSummary) DisplayProgress() float64 { return ClampProgress(c.Progress) }

// MacroSummary groups the three tracked macronutrients.
type MacroSummary struct {
	Protein MacroProgress `json:"protein"`
	Carbs   MacroProgress `json:"carbs"`
	Fats    MacroProgress `json:"fats"`
}

// MacroProgress is one macronutrient in grams.
type MacroProgress struct {
	Current  int     `json:"current"`
	Target   int     `json:"target"`
	Progress float64 `json:"progress"`
}

// DisplayProgress is Progress clamped to [0, 1] for bounded visuals.
func (m MacroProgress) DisplayProgress() float64 { return ClampProgress(m.Progress) }

// FoodItem is one recently logged food, in producer order.
type FoodItem struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Time     string `json:"time"`
}

// ClampProgress bounds p to [0, 1]. NaN becomes 0.
func ClampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Progress returns current/target, or 0 when there is no target.
func Progress(current, target int) float64 {
	if target <= 0 {
		return 0
	}
	return float64(current) / float64(target)
}

// Placeholder returns the fixed mock snapshot shown before the app has
// written any data and in preview contexts. Every call returns a fresh copy.
func Placeholder() *Snapshot {
	return &Snapshot{
		Calories: CalorieSummary{Current: 1800, Target: 2500, Progress: 0.72, Remaining: 700},
		Macros: MacroSummary{
			Protein: MacroProgress{Current: 120, Target: 150, Progress: 0.8},
			Carbs:   MacroProgress{Current: 180, Target: 300, Progress: 0.6},
			Fats:    MacroProgress{Current: 60, Target: 80, Progress: 0.75},
		},
		Streak:      15,
		LastUpdated: "2025-08-18T12:00:00Z",
		TodayFoods: []FoodItem{
			{Name: "Chicken Breast", Calories: 350, Time: "12:30"},
			{Name: "Brown Rice", Calories: 220, Time: "12:30"},
			{Name: "Greek Yogurt", Calories: 150, Time: "09:00"},
		},
	}
}

// DecodeSnapshot parses a snapshot document. Every field is required;
// a missing or null field is a decode error, as are negative counts.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeSnapshot serializes s as a single JSON document.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s.TodayFoods == nil {
		c := *s
		c.TodayFoods = []FoodItem{}
		s = &c
	}
	return json.Marshal(s)
}

// Validate checks the non-negativity invariants. Remaining may be negative.
func (s *Snapshot) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"calories.current", float64(s.Calories.Current)},
		{"calories.target", float64(s.Calories.Target)},
		{"calories.progress", s.Calories.Progress},
		{"macros.protein.current", float64(s.Macros.Protein.Current)},
		{"macros.protein.target", float64(s.Macros.Protein.Target)},
		{"macros.protein.progress", s.Macros.Protein.Progress},
		{"macros.carbs.current", float64(s.Macros.Carbs.Current)},
		{"macros.carbs.target", float64(s.Macros.Carbs.Target)},
		{"macros.carbs.progress", s.Macros.Carbs.Progress},
		{"macros.fats.current", float64(s.Macros.Fats.Current)},
		{"macros.fats.target", float64(s.Macros.Fats.Target)},
		{"macros.fats.progress", s.Macros.Fats.Progress},
		{"streak", float64(s.Streak)},
	}
	for _, c := range checks {
		if c.value < 0 || math.IsNaN(c.value) {
			return fmt.Errorf("%s must be non-negative, got %v", c.name, c.value)
		}
	}
	for i, f := range s.TodayFoods {
		if f.Calories < 0 {
			return fmt.Errorf("todayFoods[%d].calories must be non-negative, got %d", i, f.Calories)
		}
	}
	return nil
}

// LastUpdatedTime parses LastUpdated as RFC 3339.
func (s *Snapshot) LastUpdatedTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s.LastUpdated)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "calories", "macros", "streak", "lastUpdated", "todayFoods"); err != nil {
		return err
	}
	type plain Snapshot
	return json.Unmarshal(data, (*plain)(s))
}

func (c *CalorieSummary) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "current", "target", "progress", "remaining"); err != nil {
		return fmt.Errorf("calories: %w", err)
	}
	type plain CalorieSummary
	return json.Unmarshal(data, (*plain)(c))
}

func (m *MacroSummary) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "protein", "carbs", "fats"); err != nil {
		return fmt.Errorf("macros: %w", err)
	}
	type plain MacroSummary
	return json.Unmarshal(data, (*plain)(m))
}

func (m *MacroProgress) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "current", "target", "progress"); err != nil {
		return err
	}
	type plain MacroProgress
	return json.Unmarshal(data, (*plain)(m))
}

func (f *FoodItem) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "name", "calories", "time"); err != nil {
		return fmt.Errorf("todayFoods: %w", err)
	}
	type plain FoodItem
	return json.Unmarshal(data, (*plain)(f))
}

// requireKeys fails unless data is a JSON object carrying every key with a
// non-null value.
func requireKeys(data []byte, keys ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("expected object, got null")
	}
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || string(v) == "null" {
			return fmt.Errorf("missing field %q", k)
		}
	}
	return nil
}
