package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kaloriq-go/internal/kq"
)

func TestFormatLastUpdate(t *testing.T) {
	tests := []struct {
		name string
		s    *kq.Snapshot
		want string
	}{
		{"no snapshot", nil, "No data"},
		{"utc stamp", &kq.Snapshot{LastUpdated: "2025-08-18T12:00:00Z"}, "Updated 12:00"},
		{"offset stamp", &kq.Snapshot{LastUpdated: "2025-08-18T14:30:00+02:00"}, "Updated 12:30"},
		{"unparseable stamp", &kq.Snapshot{LastUpdated: "yesterday"}, "Updated recently"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLastUpdate(tt.s, time.UTC); got != tt.want {
				t.Errorf("FormatLastUpdate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		progress float64
		width    int
		want     string
	}{
		{0, 4, "░░░░"},
		{0.5, 4, "██░░"},
		{1, 4, "████"},
		{1.4, 4, "████"},
		{-0.2, 4, "░░░░"},
		{0.5, 0, ""},
	}
	for _, tt := range tests {
		if got := Bar(tt.progress, tt.width); got != tt.want {
			t.Errorf("Bar(%v, %d) = %q, want %q", tt.progress, tt.width, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	placeholder := kq.Entry{Snapshot: kq.Placeholder(), IsPlaceholder: true}

	tests := []struct {
		name   string
		family kq.WidgetFamily
		entry  kq.Entry
		want   []string
	}{
		{
			name:   "small",
			family: kq.FamilySmall,
			entry:  placeholder,
			want:   []string{"1800\n", "of 2500 kcal", "72%", "Updated 12:00 (preview)"},
		},
		{
			name:   "medium",
			family: kq.FamilyMedium,
			entry:  placeholder,
			want:   []string{"1800 kcal of 2500", "P  120g / 150g", "F   60g / 80g", "Progress 71%"},
		},
		{
			name:   "large",
			family: kq.FamilyLarge,
			entry:  placeholder,
			want:   []string{"streak 15", "700 left", "Recent Foods", "Chicken Breast", "Greek Yogurt", "Macro Progress: 71%"},
		},
		{
			name:   "no snapshot uses default targets",
			family: kq.FamilyMedium,
			entry:  kq.Entry{},
			want:   []string{"0 kcal of 2500", "P    0g / 150g", "C    0g / 300g", "F    0g / 80g", "No data"},
		},
		{
			name:   "large without foods",
			family: kq.FamilyLarge,
			entry:  kq.Entry{Snapshot: &kq.Snapshot{LastUpdated: "2025-03-02T18:45:00Z"}},
			want:   []string{"No foods logged yet", "Updated 18:45"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Render(&buf, tt.family, tt.entry, time.UTC); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestRender_OverTargetIsClamped(t *testing.T) {
	s := kq.Placeholder()
	s.Calories = kq.CalorieSummary{Current: 3000, Target: 2500, Progress: 1.2, Remaining: 0}

	var buf bytes.Buffer
	if err := Render(&buf, kq.FamilySmall, kq.Entry{Snapshot: s}, time.UTC); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "██████████ 100%") {
		t.Errorf("over-target progress not clamped:\n%s", buf.String())
	}
	if s.Calories.Progress != 1.2 {
		t.Errorf("stored progress changed to %v", s.Calories.Progress)
	}
}

func TestRender_LimitsRecentFoods(t *testing.T) {
	s := kq.Placeholder()
	s.TodayFoods = append(s.TodayFoods, kq.FoodItem{Name: "Late Snack", Calories: 90, Time: "21:00"})

	var buf bytes.Buffer
	Render(&buf, kq.FamilyLarge, kq.Entry{Snapshot: s}, time.UTC)
	if strings.Contains(buf.String(), "Late Snack") {
		t.Errorf("large widget listed more than %d foods", maxRecentFoods)
	}
}

func TestRender_UnknownFamily(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, kq.WidgetFamily("huge"), kq.Entry{}, time.UTC); err == nil {
		t.Error("Render() expected error for unknown family")
	}
}
