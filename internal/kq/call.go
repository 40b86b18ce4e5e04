package kq

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"time"
)

// Params is the loosely typed argument bag of a bridge call, as decoded from
// JSON.
type Params map[string]any

// Result is the success payload of a bridge call.
type Result map[string]any

// String returns the string under key. ok is false when the key is absent.
func (p Params) String(key string) (string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", false, malformed("%s must be a string", key)
	}
	return s, true, nil
}

// Float returns the number under key. ok is false when the key is absent.
func (p Params) Float(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, newBridgeError(KindMalformedRequest, err, "%s must be a number", key)
		}
		return f, true, nil
	default:
		return 0, false, malformed("%s must be a number", key)
	}
}

// Int returns the whole number under key.
func (p Params) Int(key string) (int, bool, error) {
	f, ok, err := p.Float(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, false, malformed("%s must be a whole number", key)
	}
	return int(f), true, nil
}

// Strings returns the string array under key, or nil when absent.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, isString := item.(string)
			if !isString {
				return nil, malformed("%s[%d] must be a string", key, i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, malformed("%s must be an array of strings", key)
	}
}

// Time parses the ISO-8601 timestamp under key. A date without a time is
// midnight UTC.
func (p Params) Time(key string) (*time.Time, error) {
	s, ok, err := p.String(key)
	if err != nil || !ok {
		return nil, err
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, malformed("%s is not an ISO-8601 date: %q", key, s)
}

type metricParam struct {
	metric Metric
	param  string
}

// nutritionParams maps nutrition metrics to their parameter names.
var nutritionParams = []metricParam{
	{MetricProtein, "protein"},
	{MetricCarbohydrate, "carbohydrates"},
	{MetricFat, "fat"},
	{MetricFiber, "fiber"},
	{MetricSugar, "sugar"},
	{MetricSodium, "sodium"},
}

// Methods lists every method name Invoke accepts.
func Methods() []string {
	return []string{
		"echo", "isAvailable", "requestPermissions",
		"write", "read",
		"writeCalories", "readCalories",
		"writeWeight", "readWeight",
		"writeWater", "readWater",
		"readSteps",
		"writeMacros", "readMacros",
		"writeNutrition", "readNutrition",
	}
}

// Invoke dispatches a named bridge call. Errors are always *BridgeError.
func (b *HealthBridge) Invoke(ctx context.Context, method string, params Params) (Result, error) {
	if params == nil {
		params = Params{}
	}
	switch method {
	case "echo":
		v, _, err := params.String("value")
		if err != nil {
			return nil, err
		}
		return Result{"value": v}, nil

	case "isAvailable":
		return Result{"available": b.IsAvailable()}, nil

	case "requestPermissions":
		read, err := params.Strings("read")
		if err != nil {
			return nil, err
		}
		write, err := params.Strings("write")
		if err != nil {
			return nil, err
		}
		granted, err := b.RequestPermissions(ctx, read, write)
		if err != nil {
			return nil, err
		}
		return Result{"granted": granted}, nil

	case "write":
		name, ok, err := params.String("metric")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, malformed("metric is required")
		}
		m, err := ParseMetric(name)
		if err != nil {
			return nil, newBridgeError(KindMalformedRequest, err, "Unknown data type %q", name)
		}
		return b.invokeWrite(ctx, params, m, "value", "")

	case "writeCalories":
		return b.invokeWrite(ctx, params, MetricEnergy, "calories", "")
	case "writeWeight":
		return b.invokeWrite(ctx, params, MetricBodyMass, "weight", UnitKilogram)
	case "writeWater":
		return b.invokeWrite(ctx, params, MetricDietaryWater, "volume", UnitMilliliter)

	case "read":
		name, ok, err := params.String("metric")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, malformed("metric is required")
		}
		m, err := ParseMetric(name)
		if err != nil {
			return nil, newBridgeError(KindMalformedRequest, err, "Unknown data type %q", name)
		}
		return b.invokeRead(ctx, params, m)

	case "readCalories":
		return b.invokeRead(ctx, params, MetricEnergy)
	case "readWeight":
		return b.invokeRead(ctx, params, MetricBodyMass)
	case "readWater":
		return b.invokeRead(ctx, params, MetricDietaryWater)
	case "readSteps":
		return b.invokeRead(ctx, params, MetricStepCount)

	case "writeNutrition":
		return b.invokeWriteNutrition(ctx, params, nutritionParams)

	case "writeMacros":
		return b.invokeWriteNutrition(ctx, params, macroParams)

	case "readNutrition":
		byMetric, err := b.invokeReadNutrition(ctx, params)
		if err != nil {
			return nil, err
		}
		nutrition := make(map[string]any, len(nutritionParams))
		for _, np := range nutritionParams {
			nutrition[np.param] = sampleMaps(byMetric[np.metric])
		}
		return Result{"nutrition": nutrition}, nil

	case "readMacros":
		byMetric, err := b.invokeReadNutrition(ctx, params)
		if err != nil {
			return nil, err
		}
		out := Result{}
		for _, mp := range macroParams {
			out[mp.param] = sampleMaps(byMetric[mp.metric])
		}
		return out, nil

	default:
		return nil, malformed("Unknown method %q", method)
	}
}

// macroParams are the parameter names of the older macro-only calls.
var macroParams = []metricParam{
	{MetricProtein, "protein"},
	{MetricCarbohydrate, "carbs"},
	{MetricFat, "fat"},
}

func (b *HealthBridge) invokeWrite(ctx context.Context, params Params, m Metric, valueKey string, defaultUnit Unit) (Result, error) {
	value, ok, err := params.Float(valueKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed("%s is required", valueKey)
	}
	unit := defaultUnit
	if u, ok, err := params.String("unit"); err != nil {
		return nil, err
	} else if ok {
		unit = Unit(u)
	}
	date, err := params.Time("date")
	if err != nil {
		return nil, err
	}
	if err := b.Write(ctx, WriteRequest{Metric: m, Value: value, Unit: unit, Date: date}); err != nil {
		return nil, err
	}
	return Result{"success": true}, nil
}

func (b *HealthBridge) invokeRead(ctx context.Context, params Params, m Metric) (Result, error) {
	days, _, err := params.Int("days")
	if err != nil {
		return nil, err
	}
	start, err := params.Time("startDate")
	if err != nil {
		return nil, err
	}
	end, err := params.Time("endDate")
	if err != nil {
		return nil, err
	}
	values, err := b.Read(ctx, ReadRequest{Metric: m, Days: days, Start: start, End: end})
	if err != nil {
		return nil, err
	}
	return Result{"samples": sampleMaps(values)}, nil
}

func (b *HealthBridge) invokeWriteNutrition(ctx context.Context, params Params, names []metricParam) (Result, error) {
	values := make(map[Metric]float64)
	for _, n := range names {
		v, ok, err := params.Float(n.param)
		if err != nil {
			return nil, err
		}
		if ok {
			values[n.metric] = v
		}
	}
	date, err := params.Time("date")
	if err != nil {
		return nil, err
	}
	if err := b.WriteNutrition(ctx, values, date); err != nil {
		return nil, err
	}
	return Result{"success": true}, nil
}

func (b *HealthBridge) invokeReadNutrition(ctx context.Context, params Params) (map[Metric][]SampleValue, error) {
	start, err := params.Time("startDate")
	if err != nil {
		return nil, err
	}
	end, err := params.Time("endDate")
	if err != nil {
		return nil, err
	}
	return b.ReadNutrition(ctx, start, end)
}

func sampleMaps(values []SampleValue) []map[string]any {
	out := make([]map[string]any, len(values))
	for i, v := range values {
		out[i] = map[string]any{
			"value":  v.Value,
			"date":   v.Date.UTC().Format(time.RFC3339),
			"source": v.Source,
		}
	}
	return out
}

// DecodeParams parses a JSON object into Params, keeping numbers as
// json.Number so integer values survive intact.
func DecodeParams(data []byte) (Params, error) {
	if len(data) == 0 {
		return Params{}, nil
	}
	var p Params
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, newBridgeError(KindMalformedRequest, err, "Invalid call parameters")
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}
