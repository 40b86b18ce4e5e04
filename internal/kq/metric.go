package kq

import (
	"fmt"
	"strings"
)

// Metric names a health quantity exchanged across the bridge.
type Metric string

const (
	MetricEnergy       Metric = "energy"
	MetricBodyMass     Metric = "body-mass"
	MetricDietaryWater Metric = "dietary-water"
	MetricProtein      Metric = "protein"
	MetricCarbohydrate Metric = "carbohydrate"
	MetricFat          Metric = "fat"
	MetricFiber        Metric = "fiber"
	MetricSugar        Metric = "sugar"
	MetricSodium       Metric = "sodium"
	MetricStepCount    Metric = "step-count"
)

// Unit is a measurement unit a caller may name explicitly.
type Unit string

const (
	UnitKilocalorie  Unit = "kcal"
	UnitKilogram     Unit = "kg"
	UnitPound        Unit = "lb"
	UnitMilliliter   Unit = "ml"
	UnitLiter        Unit = "l"
	UnitFluidOunceUS Unit = "fl_oz"
	UnitGram         Unit = "g"
	UnitMilligram    Unit = "mg"
	UnitCount        Unit = "count"
)

const (
	kilogramsPerPound       = 0.45359237
	millilitersPerLiter     = 1000
	millilitersPerFluidOzUS = 29.5735295625
)

type metricInfo struct {
	canonical Unit
	// factors converts an accepted unit into the canonical unit.
	factors      map[Unit]float64
	writable     bool
	lookbackDays int
	aliases      []string
}

var metricTable = map[Metric]metricInfo{
	MetricEnergy: {
		canonical: UnitKilocalorie, factors: map[Unit]float64{UnitKilocalorie: 1},
		writable: true, lookbackDays: 7, aliases: []string{"calories", "dietary-energy"},
	},
	MetricBodyMass: {
		canonical: UnitKilogram, factors: map[Unit]float64{UnitKilogram: 1, UnitPound: kilogramsPerPound},
		writable: true, lookbackDays: 30, aliases: []string{"weight"},
	},
	MetricDietaryWater: {
		canonical: UnitMilliliter,
		factors: map[Unit]float64{
			UnitMilliliter:   1,
			UnitLiter:        millilitersPerLiter,
			UnitFluidOunceUS: millilitersPerFluidOzUS,
		},
		writable: true, lookbackDays: 7, aliases: []string{"water"},
	},
	MetricProtein: {
		canonical: UnitGram, factors: map[Unit]float64{UnitGram: 1},
		writable: true, lookbackDays: 7,
	},
	MetricCarbohydrate: {
		canonical: UnitGram, factors: map[Unit]float64{UnitGram: 1},
		writable: true, lookbackDays: 7, aliases: []string{"carbohydrates", "carbs"},
	},
	MetricFat: {
		canonical: UnitGram, factors: map[Unit]float64{UnitGram: 1},
		writable: true, lookbackDays: 7, aliases: []string{"fats", "fat-total"},
	},
	MetricFiber: {
		canonical: UnitGram, factors: map[Unit]float64{UnitGram: 1},
		writable: true, lookbackDays: 7,
	},
	MetricSugar: {
		canonical: UnitGram, factors: map[Unit]float64{UnitGram: 1},
		writable: true, lookbackDays: 7,
	},
	MetricSodium: {
		canonical: UnitMilligram, factors: map[Unit]float64{UnitMilligram: 1},
		writable: true, lookbackDays: 7,
	},
	MetricStepCount: {
		canonical: UnitCount, factors: map[Unit]float64{UnitCount: 1},
		writable: false, lookbackDays: 7, aliases: []string{"steps"},
	},
}

// ParseMetric accepts a canonical metric name or one of the legacy names the
// app shell still sends ("calories", "weight", "water", "carbohydrates", ...).
func ParseMetric(name string) (Metric, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := metricTable[Metric(n)]; ok {
		return Metric(n), nil
	}
	for m, info := range metricTable {
		for _, a := range info.aliases {
			if a == n {
				return m, nil
			}
		}
	}
	return "", fmt.Errorf("unknown metric %q", name)
}

// NutritionMetrics are the dietary metrics written and read as one group.
func NutritionMetrics() []Metric {
	return []Metric{MetricProtein, MetricCarbohydrate, MetricFat, MetricFiber, MetricSugar, MetricSodium}
}

// AllMetrics lists every known metric in a stable order.
func AllMetrics() []Metric {
	return []Metric{
		MetricEnergy, MetricBodyMass, MetricDietaryWater,
		MetricProtein, MetricCarbohydrate, MetricFat, MetricFiber, MetricSugar, MetricSodium,
		MetricStepCount,
	}
}

// CanonicalUnit is the unit samples of m are stored and reported in.
func (m Metric) CanonicalUnit() Unit { return metricTable[m].canonical }

// Writable reports whether samples of m may be written through the bridge.
func (m Metric) Writable() bool { return metricTable[m].writable }

// DefaultLookbackDays is the read window used when a caller gives no range.
func (m Metric) DefaultLookbackDays() int {
	if d := metricTable[m].lookbackDays; d > 0 {
		return d
	}
	return 7
}

// ToCanonical converts value expressed in unit into m's canonical unit.
// An empty unit means the value is already canonical.
func (m Metric) ToCanonical(value float64, unit Unit) (float64, error) {
	info, ok := metricTable[m]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", m)
	}
	if unit == "" {
		return value, nil
	}
	factor, ok := info.factors[unit]
	if !ok {
		return 0, fmt.Errorf("unit %q is not valid for %s", unit, m)
	}
	return value * factor, nil
}

// FromCanonical converts a canonical value of m into unit.
func (m Metric) FromCanonical(value float64, unit Unit) (float64, error) {
	info, ok := metricTable[m]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", m)
	}
	if unit == "" {
		return value, nil
	}
	factor, ok := info.factors[unit]
	if !ok {
		return 0, fmt.Errorf("unit %q is not valid for %s", unit, m)
	}
	return value / factor, nil
}
