package kq

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSource is the source name stamped on samples written through the
// bridge when none is configured.
const DefaultSource = "KaloriQ"

// BridgeOptions tune a HealthBridge.
type BridgeOptions struct {
	// Source is recorded on every written sample.
	Source string

	// EnforceAuthorization rejects reads and writes of metrics that were
	// never requested through RequestPermissions.
	EnforceAuthorization bool
}

// HealthBridge is the request/response surface the app uses to read and
// write health samples.
type HealthBridge struct {
	store  HealthStore
	clock  Clock
	ids    IDGenerator
	logger Logger
	opts   BridgeOptions
}

func NewHealthBridge(store HealthStore, clock Clock, ids IDGenerator, logger Logger, opts BridgeOptions) *HealthBridge {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	return &HealthBridge{store: store, clock: clock, ids: ids, logger: logger, opts: opts}
}

// WriteRequest writes one sample. Unit may be empty for the canonical unit.
// A nil Date means now.
type WriteRequest struct {
	Metric Metric
	Value  float64
	Unit   Unit
	Date   *time.Time
}

// ReadRequest selects samples of one metric. Either Days or an explicit
// Start/End may be given; with neither the metric's default lookback applies.
type ReadRequest struct {
	Metric Metric
	Days   int
	Start  *time.Time
	End    *time.Time
}

// SampleValue is one sample as reported to callers.
type SampleValue struct {
	Value  float64
	Date   time.Time
	Source string
}

// IsAvailable reports whether the device supports health data.
func (b *HealthBridge) IsAvailable() bool {
	return b.store != nil && b.store.IsAvailable()
}

// RequestPermissions asks for read and write access. The result reports that
// the request completed, not which grants were made. Empty sets are valid.
func (b *HealthBridge) RequestPermissions(ctx context.Context, read, write []string) (bool, error) {
	if !b.IsAvailable() {
		return false, newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	readMetrics, err := parseMetrics(read, false)
	if err != nil {
		return false, err
	}
	writeMetrics, err := parseMetrics(write, true)
	if err != nil {
		return false, err
	}

	granted, err := b.store.RequestAuthorization(ctx, writeMetrics, readMetrics)
	if err != nil {
		return false, newBridgeError(KindStoreFailure, err, "Authorization request failed")
	}
	b.logger.Info("requested health permissions", "read", len(readMetrics), "write", len(writeMetrics), "granted", granted)
	return granted, nil
}

func parseMetrics(names []string, forWrite bool) ([]Metric, error) {
	out := make([]Metric, 0, len(names))
	for _, n := range names {
		m, err := ParseMetric(n)
		if err != nil {
			return nil, newBridgeError(KindMalformedRequest, err, "Unknown data type %q", n)
		}
		if forWrite && !m.Writable() {
			return nil, malformed("Data type %q is read-only", n)
		}
		out = append(out, m)
	}
	return out, nil
}

// Write saves one sample converted to the metric's canonical unit.
func (b *HealthBridge) Write(ctx context.Context, req WriteRequest) error {
	if !b.IsAvailable() {
		return newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	sample, err := b.newSample(req.Metric, req.Value, req.Unit, b.dateOrNow(req.Date))
	if err != nil {
		return err
	}
	if err := b.checkAuthorized(ctx, AccessWrite, req.Metric); err != nil {
		return err
	}
	if err := b.store.Save(ctx, []Sample{sample}); err != nil {
		return newBridgeError(KindStoreFailure, err, "Failed to save %s", req.Metric)
	}
	b.logger.Debug("wrote health sample", "metric", string(req.Metric), "value", sample.Value)
	return nil
}

// Read returns samples of one metric in its canonical unit, oldest first.
func (b *HealthBridge) Read(ctx context.Context, req ReadRequest) ([]SampleValue, error) {
	if !b.IsAvailable() {
		return nil, newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	if _, ok := metricTable[req.Metric]; !ok {
		return nil, malformed("Unknown data type %q", req.Metric)
	}
	start, end, err := b.resolveRange(req.Metric, req.Days, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if err := b.checkAuthorized(ctx, AccessRead, req.Metric); err != nil {
		return nil, err
	}
	return b.query(ctx, req.Metric, start, end)
}

// WriteNutrition saves every given nutrient with one shared timestamp. Either
// all samples are saved or none are.
func (b *HealthBridge) WriteNutrition(ctx context.Context, values map[Metric]float64, date *time.Time) error {
	if !b.IsAvailable() {
		return newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	if len(values) == 0 {
		return malformed("No nutrition data provided")
	}

	for m := range values {
		if !isNutrition(m) {
			return malformed("%s is not a nutrition data type", m)
		}
	}

	at := b.dateOrNow(date)
	samples := make([]Sample, 0, len(values))
	for _, m := range NutritionMetrics() {
		v, ok := values[m]
		if !ok {
			continue
		}
		s, err := b.newSample(m, v, "", at)
		if err != nil {
			return err
		}
		if err := b.checkAuthorized(ctx, AccessWrite, m); err != nil {
			return err
		}
		samples = append(samples, s)
	}
	if err := b.store.Save(ctx, samples); err != nil {
		return newBridgeError(KindStoreFailure, err, "Failed to save nutrition data")
	}
	b.logger.Debug("wrote nutrition samples", "count", len(samples))
	return nil
}

// ReadNutrition queries every nutrition metric in parallel. If any query
// fails the whole read fails.
func (b *HealthBridge) ReadNutrition(ctx context.Context, start, end *time.Time) (map[Metric][]SampleValue, error) {
	if !b.IsAvailable() {
		return nil, newBridgeError(KindCapabilityUnavailable, ErrHealthDataUnavailable, "HealthKit is not available on this device")
	}
	from, to, err := b.resolveRange(MetricProtein, 0, start, end)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[Metric][]SampleValue, len(NutritionMetrics()))

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range NutritionMetrics() {
		g.Go(func() error {
			if err := b.checkAuthorized(gctx, AccessRead, m); err != nil {
				return err
			}
			values, err := b.query(gctx, m, from, to)
			if err != nil {
				return err
			}
			mu.Lock()
			out[m] = values
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HealthBridge) query(ctx context.Context, m Metric, start, end time.Time) ([]SampleValue, error) {
	samples, err := b.store.Query(ctx, m, start, end)
	if err != nil {
		return nil, newBridgeError(KindStoreFailure, err, "Failed to read %s", m)
	}
	values := make([]SampleValue, len(samples))
	for i, s := range samples {
		values[i] = SampleValue{Value: s.Value, Date: s.Start, Source: s.Source}
	}
	return values, nil
}

func (b *HealthBridge) newSample(m Metric, value float64, unit Unit, at time.Time) (Sample, error) {
	if _, ok := metricTable[m]; !ok {
		return Sample{}, malformed("Unknown data type %q", m)
	}
	if !m.Writable() {
		return Sample{}, malformed("Data type %q is read-only", m)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Sample{}, malformed("Invalid %s value %v", m, value)
	}
	if !InSampleRange(at) {
		return Sample{}, malformed("Date %s is outside the supported range", at.Format(time.RFC3339))
	}
	canonical, err := m.ToCanonical(value, unit)
	if err != nil {
		return Sample{}, newBridgeError(KindMalformedRequest, err, "Invalid unit for %s", m)
	}
	return Sample{
		ID:        b.ids.New(),
		Metric:    m,
		Value:     canonical,
		Start:     at,
		End:       at,
		Source:    b.opts.Source,
		CreatedAt: b.clock.Now(),
	}, nil
}

func (b *HealthBridge) checkAuthorized(ctx context.Context, access Access, m Metric) error {
	if !b.opts.EnforceAuthorization {
		return nil
	}
	ok, err := b.store.IsAuthorized(ctx, m, access)
	if err != nil {
		return newBridgeError(KindStoreFailure, err, "Failed to check authorization")
	}
	if !ok {
		return newBridgeError(KindPermissionDenied, nil, "Not authorized to %s %s", access, m)
	}
	return nil
}

func (b *HealthBridge) dateOrNow(d *time.Time) time.Time {
	if d != nil {
		return *d
	}
	return b.clock.Now()
}

// resolveRange turns the optional read bounds into an inclusive window.
func (b *HealthBridge) resolveRange(m Metric, days int, start, end *time.Time) (time.Time, time.Time, error) {
	if days < 0 {
		return time.Time{}, time.Time{}, malformed("days must not be negative, got %d", days)
	}
	if days == 0 {
		days = m.DefaultLookbackDays()
	}

	to := b.clock.Now()
	if end != nil {
		to = *end
	}
	from := to.AddDate(0, 0, -days)
	if start != nil {
		from = *start
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, malformed("startDate must not be after endDate")
	}
	return clampSampleTime(from), clampSampleTime(to), nil
}

func isNutrition(m Metric) bool {
	for _, n := range NutritionMetrics() {
		if n == m {
			return true
		}
	}
	return false
}
