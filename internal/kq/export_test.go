package kq_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/testutil"
)

func TestHealthBridge_ExportImport(t *testing.T) {
	ctx := context.Background()
	enc := testutil.NewTestEncryptor()
	src := newBridgeFixture(t, kq.BridgeOptions{})

	day := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	writes := []kq.WriteRequest{
		{Metric: kq.MetricEnergy, Value: 650, Date: ptr(day.Add(12 * time.Hour))},
		{Metric: kq.MetricBodyMass, Value: 71.2, Date: ptr(day.Add(7 * time.Hour))},
		{Metric: kq.MetricSodium, Value: 900, Date: ptr(day.Add(19 * time.Hour))},
		{Metric: kq.MetricEnergy, Value: 400, Date: ptr(day.AddDate(0, 0, -10))},
	}
	for _, w := range writes {
		if err := src.bridge.Write(ctx, w); err != nil {
			t.Fatalf("Write(%s) error = %v", w.Metric, err)
		}
	}

	var archive bytes.Buffer
	n, err := src.bridge.Export(ctx, enc, &archive, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Export() wrote %d samples, want 3", n)
	}
	if !bytes.HasPrefix(archive.Bytes(), []byte("KQTEST1")) {
		t.Error("archive was not passed through the encryptor")
	}

	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	dst := newBridgeFixture(t, kq.BridgeOptions{})
	data := archive.Bytes()
	imported, err := dst.bridge.Import(ctx, dec, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if imported != 3 {
		t.Errorf("Import() = %d, want 3", imported)
	}

	got, err := dst.bridge.Read(ctx, kq.ReadRequest{Metric: kq.MetricBodyMass, Start: ptr(day), End: ptr(day.AddDate(0, 0, 1))})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 71.2 || !got[0].Date.Equal(day.Add(7*time.Hour)) {
		t.Errorf("imported body-mass = %+v", got)
	}

	if _, err := dst.bridge.Import(ctx, dec, bytes.NewReader(data)); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	energy, _ := dst.bridge.Read(ctx, kq.ReadRequest{Metric: kq.MetricEnergy, Start: ptr(day), End: ptr(day.AddDate(0, 0, 1))})
	if len(energy) != 1 {
		t.Errorf("re-import duplicated samples: %+v", energy)
	}
}

func TestHealthBridge_ImportRejects(t *testing.T) {
	ctx := context.Background()
	enc := testutil.NewTestEncryptor()
	dec, _ := enc.Unlock("")

	seal := func(doc string) *bytes.Buffer {
		var buf bytes.Buffer
		if err := enc.Encrypt(strings.NewReader(doc), &buf); err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		return &buf
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "samples: none"},
		{"future version", `{"version":2,"exportedAt":"2024-01-15T00:00:00Z","samples":[]}`},
		{"date outside storable range", `{"version":1,"exportedAt":"2024-01-15T00:00:00Z","samples":[{"id":"x","metric":"energy","value":1,"start":"2300-01-01T00:00:00Z","end":"2300-01-01T00:00:00Z","source":"s","createdAt":"2024-01-15T00:00:00Z"}]}`},
		{"unknown metric", `{"version":1,"exportedAt":"2024-01-15T00:00:00Z","samples":[{"id":"x","metric":"mood","value":1,"start":"2024-01-15T00:00:00Z","end":"2024-01-15T00:00:00Z","source":"s","createdAt":"2024-01-15T00:00:00Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBridgeFixture(t, kq.BridgeOptions{})
			if _, err := f.bridge.Import(ctx, dec, seal(tt.doc)); !kq.IsKind(err, kq.KindMalformedRequest) {
				t.Errorf("Import() error = %v, want malformed request", err)
			}
		})
	}

	t.Run("bad ciphertext", func(t *testing.T) {
		f := newBridgeFixture(t, kq.BridgeOptions{})
		if _, err := f.bridge.Import(ctx, dec, strings.NewReader("plain text")); err == nil {
			t.Error("Import() expected decryption error")
		}
	})
}

func TestHealthBridge_ExportRange(t *testing.T) {
	f := newBridgeFixture(t, kq.BridgeOptions{})
	now := f.clock.Now()
	var buf bytes.Buffer
	_, err := f.bridge.Export(context.Background(), testutil.NewTestEncryptor(), &buf, now, now.Add(-time.Hour))
	if !kq.IsKind(err, kq.KindMalformedRequest) {
		t.Errorf("Export() error = %v, want malformed request", err)
	}
}
