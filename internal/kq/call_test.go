package kq_test

import (
	"context"
	"encoding/json"
	"testing"

	"kaloriq-go/internal/kq"
)

func mustParams(t *testing.T, doc string) kq.Params {
	t.Helper()
	p, err := kq.DecodeParams([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeParams(%s) error = %v", doc, err)
	}
	return p
}

func TestInvoke_Simple(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	got, err := f.bridge.Invoke(ctx, "echo", mustParams(t, `{"value":"ping"}`))
	if err != nil || got["value"] != "ping" {
		t.Errorf("echo = %v, %v", got, err)
	}

	got, err = f.bridge.Invoke(ctx, "isAvailable", nil)
	if err != nil || got["available"] != true {
		t.Errorf("isAvailable = %v, %v", got, err)
	}

	got, err = f.bridge.Invoke(ctx, "requestPermissions", mustParams(t, `{"read":["calories","steps"],"write":[]}`))
	if err != nil || got["granted"] != true {
		t.Errorf("requestPermissions = %v, %v", got, err)
	}
}

func TestInvoke_WriteAndReadCalories(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	got, err := f.bridge.Invoke(ctx, "writeCalories", mustParams(t, `{"calories":500,"date":"2024-01-15T08:00:00Z"}`))
	if err != nil || got["success"] != true {
		t.Fatalf("writeCalories = %v, %v", got, err)
	}

	got, err = f.bridge.Invoke(ctx, "readCalories", mustParams(t, `{"days":1}`))
	if err != nil {
		t.Fatalf("readCalories error = %v", err)
	}
	samples := got["samples"].([]map[string]any)
	if len(samples) != 1 {
		t.Fatalf("readCalories returned %d samples, want 1", len(samples))
	}
	if samples[0]["value"] != 500.0 || samples[0]["date"] != "2024-01-15T08:00:00Z" || samples[0]["source"] != kq.DefaultSource {
		t.Errorf("sample = %v", samples[0])
	}

	if _, err := json.Marshal(got); err != nil {
		t.Errorf("result is not JSON encodable: %v", err)
	}
}

func TestInvoke_GenericMetricCalls(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	if _, err := f.bridge.Invoke(ctx, "write", mustParams(t, `{"metric":"weight","value":160,"unit":"lb"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}
	got, err := f.bridge.Invoke(ctx, "readWeight", nil)
	if err != nil {
		t.Fatalf("readWeight error = %v", err)
	}
	samples := got["samples"].([]map[string]any)
	if len(samples) != 1 || !approxEqual(samples[0]["value"].(float64), 160*0.45359237) {
		t.Errorf("readWeight = %v, want one sample in kg", samples)
	}

	got, err = f.bridge.Invoke(ctx, "read", mustParams(t, `{"metric":"body-mass","startDate":"2024-01-01","endDate":"2024-01-31"}`))
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if len(got["samples"].([]map[string]any)) != 1 {
		t.Errorf("read = %v, want one sample", got)
	}
}

func TestInvoke_WaterDefaultsToMilliliters(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	if _, err := f.bridge.Invoke(ctx, "writeWater", mustParams(t, `{"volume":330}`)); err != nil {
		t.Fatalf("writeWater error = %v", err)
	}
	got, err := f.bridge.Invoke(ctx, "readWater", nil)
	if err != nil {
		t.Fatalf("readWater error = %v", err)
	}
	samples := got["samples"].([]map[string]any)
	if len(samples) != 1 || samples[0]["value"] != 330.0 {
		t.Errorf("readWater = %v, want 330 ml", samples)
	}
}

func TestInvoke_Nutrition(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	if _, err := f.bridge.Invoke(ctx, "writeNutrition", mustParams(t, `{"protein":30,"carbohydrates":55,"fat":10,"fiber":6}`)); err != nil {
		t.Fatalf("writeNutrition error = %v", err)
	}
	if _, err := f.bridge.Invoke(ctx, "writeMacros", mustParams(t, `{"protein":5,"carbs":5}`)); err != nil {
		t.Fatalf("writeMacros error = %v", err)
	}

	got, err := f.bridge.Invoke(ctx, "readNutrition", nil)
	if err != nil {
		t.Fatalf("readNutrition error = %v", err)
	}
	nutrition := got["nutrition"].(map[string]any)
	for _, key := range []string{"protein", "carbohydrates", "fat", "fiber", "sugar", "sodium"} {
		if _, ok := nutrition[key]; !ok {
			t.Errorf("readNutrition missing %q", key)
		}
	}
	if n := len(nutrition["protein"].([]map[string]any)); n != 2 {
		t.Errorf("protein has %d samples, want 2", n)
	}
	if n := len(nutrition["sugar"].([]map[string]any)); n != 0 {
		t.Errorf("sugar has %d samples, want 0", n)
	}

	macros, err := f.bridge.Invoke(ctx, "readMacros", nil)
	if err != nil {
		t.Fatalf("readMacros error = %v", err)
	}
	for _, key := range []string{"protein", "carbs", "fat"} {
		if _, ok := macros[key]; !ok {
			t.Errorf("readMacros missing %q", key)
		}
	}
	if n := len(macros["carbs"].([]map[string]any)); n != 2 {
		t.Errorf("carbs has %d samples, want 2", n)
	}
}

func TestInvoke_Malformed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		params string
	}{
		{"unknown method", "deleteEverything", `{}`},
		{"write without metric", "write", `{"value":1}`},
		{"write unknown metric", "write", `{"metric":"mood","value":1}`},
		{"writeCalories without value", "writeCalories", `{}`},
		{"calories as string", "writeCalories", `{"calories":"500"}`},
		{"bad date", "writeCalories", `{"calories":500,"date":"yesterday"}`},
		{"fractional days", "readCalories", `{"days":1.5}`},
		{"read list of numbers", "requestPermissions", `{"read":[1,2]}`},
		{"empty nutrition", "writeNutrition", `{}`},
		{"write steps", "write", `{"metric":"steps","value":100}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBridgeFixture(t, kq.BridgeOptions{})
			_, err := f.bridge.Invoke(ctx, tt.method, mustParams(t, tt.params))
			if !kq.IsKind(err, kq.KindMalformedRequest) {
				t.Errorf("Invoke(%s) error = %v, want malformed request", tt.method, err)
			}
		})
	}
}

func TestInvoke_EveryMethodIsDispatched(t *testing.T) {
	ctx := context.Background()
	f := newBridgeFixture(t, kq.BridgeOptions{})

	for _, m := range kq.Methods() {
		_, err := f.bridge.Invoke(ctx, m, kq.Params{})
		var be *kq.BridgeError
		if err != nil && asBridgeError(err, &be) && be.Message == `Unknown method "`+m+`"` {
			t.Errorf("Methods() lists %q but Invoke does not dispatch it", m)
		}
	}
}

func TestDecodeParams(t *testing.T) {
	p, err := kq.DecodeParams([]byte(`{"n":12345678901,"f":2.5,"s":"x","list":["a","b"]}`))
	if err != nil {
		t.Fatalf("DecodeParams() error = %v", err)
	}

	if n, ok, err := p.Int("n"); err != nil || !ok || n != 12345678901 {
		t.Errorf("Int(n) = %d, %v, %v", n, ok, err)
	}
	if f, ok, err := p.Float("f"); err != nil || !ok || f != 2.5 {
		t.Errorf("Float(f) = %v, %v, %v", f, ok, err)
	}
	if _, ok, err := p.Float("missing"); err != nil || ok {
		t.Errorf("Float(missing) = _, %v, %v, want absent", ok, err)
	}
	if list, err := p.Strings("list"); err != nil || len(list) != 2 || list[1] != "b" {
		t.Errorf("Strings(list) = %v, %v", list, err)
	}
	if _, _, err := p.String("f"); err == nil {
		t.Error("String(f) expected type error")
	}

	empty, err := kq.DecodeParams(nil)
	if err != nil || empty == nil {
		t.Errorf("DecodeParams(nil) = %v, %v, want empty params", empty, err)
	}
	if _, err := kq.DecodeParams([]byte(`[1,2]`)); !kq.IsKind(err, kq.KindMalformedRequest) {
		t.Errorf("DecodeParams(array) error = %v, want malformed request", err)
	}
}

func TestParams_Time(t *testing.T) {
	p := kq.Params{
		"full": "2024-01-15T08:00:00.5+02:00",
		"date": "2024-01-15",
		"bad":  "15/01/2024",
	}

	full, err := p.Time("full")
	if err != nil || full.UTC().Hour() != 6 {
		t.Errorf("Time(full) = %v, %v", full, err)
	}
	date, err := p.Time("date")
	if err != nil || date.Hour() != 0 || date.Day() != 15 {
		t.Errorf("Time(date) = %v, %v", date, err)
	}
	if _, err := p.Time("bad"); !kq.IsKind(err, kq.KindMalformedRequest) {
		t.Errorf("Time(bad) error = %v, want malformed request", err)
	}
	if got, err := p.Time("absent"); got != nil || err != nil {
		t.Errorf("Time(absent) = %v, %v, want nil, nil", got, err)
	}
}
