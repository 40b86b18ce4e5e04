// Package render draws widget timeline entries as plain text for terminals.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"kaloriq-go/internal/kq"
)

// Targets shown when an entry carries no snapshot.
const (
	DefaultCalorieTarget = 2500
	DefaultProteinTarget = 150
	DefaultCarbsTarget   = 300
	DefaultFatsTarget    = 80
)

// maxRecentFoods is how many logged foods the large family lists.
const maxRecentFoods = 3

// FormatLastUpdate formats a snapshot's lastUpdated stamp for display in loc.
func FormatLastUpdate(s *kq.Snapshot, loc *time.Location) string {
	if s == nil {
		return "No data"
	}
	t, ok := s.LastUpdatedTime()
	if !ok {
		return "Updated recently"
	}
	return "Updated " + t.In(loc).Format("15:04")
}

// Bar draws progress as a fixed-width bar. Progress is clamped to [0, 1].
func Bar(progress float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(kq.ClampProgress(progress) * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// percent truncates a clamped progress to a whole percentage.
func percent(progress float64) int {
	return int(kq.ClampProgress(progress) * 100)
}

// view holds the values a widget shows, with defaults filled in.
type view struct {
	calories, calorieTarget, remaining int
	calorieProgress                    float64
	macros                             []macroLine
	streak                             int
	foods                              []kq.FoodItem
	placeholder                        bool
	snapshot                           *kq.Snapshot
}

type macroLine struct {
	label           string
	current, target int
	progress        float64
}

// newView fills in the default targets for an entry without a snapshot.
// Provider timelines always carry one, but entries built by hand may not.
func newView(e kq.Entry) view {
	s := e.Snapshot
	if s == nil {
		return view{
			calorieTarget: DefaultCalorieTarget,
			remaining:     DefaultCalorieTarget,
			macros: []macroLine{
				{label: "P", target: DefaultProteinTarget},
				{label: "C", target: DefaultCarbsTarget},
				{label: "F", target: DefaultFatsTarget},
			},
			placeholder: e.IsPlaceholder,
		}
	}
	return view{
		calories:        s.Calories.Current,
		calorieTarget:   s.Calories.Target,
		remaining:       s.Calories.Remaining,
		calorieProgress: s.Calories.Progress,
		macros: []macroLine{
			{"P", s.Macros.Protein.Current, s.Macros.Protein.Target, s.Macros.Protein.Progress},
			{"C", s.Macros.Carbs.Current, s.Macros.Carbs.Target, s.Macros.Carbs.Progress},
			{"F", s.Macros.Fats.Current, s.Macros.Fats.Target, s.Macros.Fats.Progress},
		},
		streak:      s.Streak,
		foods:       s.TodayFoods,
		placeholder: e.IsPlaceholder,
		snapshot:    s,
	}
}

func (v view) macroAverage() float64 {
	var sum float64
	for _, m := range v.macros {
		sum += kq.ClampProgress(m.progress)
	}
	return sum / float64(len(v.macros))
}

// Render writes entry as text laid out for family. Times are shown in loc.
func Render(w io.Writer, family kq.WidgetFamily, e kq.Entry, loc *time.Location) error {
	v := newView(e)
	var b strings.Builder

	switch family {
	case kq.FamilySmall:
		fmt.Fprintf(&b, "%d\nof %d kcal\n", v.calories, v.calorieTarget)
		fmt.Fprintf(&b, "%s %d%%\n", Bar(v.calorieProgress, 10), percent(v.calorieProgress))

	case kq.FamilyMedium:
		fmt.Fprintf(&b, "%d kcal of %d  %s %d%%\n", v.calories, v.calorieTarget, Bar(v.calorieProgress, 12), percent(v.calorieProgress))
		for _, m := range v.macros {
			fmt.Fprintf(&b, "%s %4dg / %dg  %s\n", m.label, m.current, m.target, Bar(m.progress, 8))
		}
		fmt.Fprintf(&b, "Progress %d%%\n", int(v.macroAverage()*100))

	case kq.FamilyLarge:
		fmt.Fprintf(&b, "Kaloriq  Daily Progress  streak %d\n", v.streak)
		fmt.Fprintf(&b, "%d kcal  %d left  %s\n", v.calories, v.remaining, Bar(v.calorieProgress, 16))
		for _, m := range v.macros {
			fmt.Fprintf(&b, "%s %4dg / %dg  %s\n", m.label, m.current, m.target, Bar(m.progress, 12))
		}
		b.WriteString("Recent Foods\n")
		if len(v.foods) == 0 {
			b.WriteString("  No foods logged yet\n")
		}
		for i, f := range v.foods {
			if i == maxRecentFoods {
				break
			}
			fmt.Fprintf(&b, "  %-20s %5d kcal  %s\n", f.Name, f.Calories, f.Time)
		}
		fmt.Fprintf(&b, "Macro Progress: %d%%\n", int(v.macroAverage()*100))

	default:
		return fmt.Errorf("unknown widget family %q", family)
	}

	b.WriteString(FormatLastUpdate(v.snapshot, loc))
	if v.placeholder {
		b.WriteString(" (preview)")
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
