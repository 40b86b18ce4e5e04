package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kaloriq-go/internal/config"
	"kaloriq-go/internal/kq"
)

const testDocument = `{
  "calories": {"current": 1800, "target": 2500, "progress": 0.72, "remaining": 700},
  "macros": {
    "protein": {"current": 110, "target": 150, "progress": 0.733},
    "carbs": {"current": 200, "target": 300, "progress": 0.667},
    "fats": {"current": 60, "target": 80, "progress": 0.75}
  },
  "streak": 2,
  "lastUpdated": "2025-03-02T18:45:00Z",
  "todayFoods": [{"name": "Rice", "calories": 400, "time": "12:30"}]
}`

// newTestConfig returns a config with in-memory stores and test encryption.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig(t.TempDir())
	cfg.SharedStore = config.StoreConfig{Type: "memory"}
	cfg.AppStore = config.StoreConfig{Type: "memory"}
	cfg.HealthStore = config.HealthStoreConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *KQApp {
	t.Helper()

	a, err := NewKQApp(context.Background(), cfg, operation)
	if err != nil {
		t.Fatalf("NewKQApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewKQApp(t *testing.T) {
	t.Run("memory config", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := newTestApp(t, cfg, "WidgetTimeline")

		if a.Logger() == nil {
			t.Error("Logger() = nil")
		}
		if _, err := os.Stat(filepath.Join(cfg.LogDir, LogFileName)); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("unmigrated health database", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.HealthStore = config.HealthStoreConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "data")}

		_, err := NewKQApp(context.Background(), cfg, "WidgetTimeline")
		if err == nil {
			t.Fatal("NewKQApp() expected error for unmigrated database")
		}
		if !strings.Contains(err.Error(), "kq db migrate") {
			t.Errorf("error = %v, want hint to run kq db migrate", err)
		}

		if _, err := MigrateHealthStore(cfg); err != nil {
			t.Fatalf("MigrateHealthStore() error = %v", err)
		}
		a, err := NewKQApp(context.Background(), cfg, "WidgetTimeline")
		if err != nil {
			t.Fatalf("NewKQApp() after migrate error = %v", err)
		}
		a.Close()
	})

	t.Run("invalid shared store", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.SharedStore = config.StoreConfig{Type: "bogus"}

		if _, err := NewKQApp(context.Background(), cfg, "WidgetTimeline"); err == nil {
			t.Error("NewKQApp() expected error for unknown store type")
		}
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Log.Format = "xml"

		if _, err := NewKQApp(context.Background(), cfg, "WidgetTimeline"); err == nil {
			t.Error("NewKQApp() expected error for unknown log format")
		}
	})
}

func TestKQApp_PublishAndTimeline(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "SnapshotPublish")

	tl := a.Timeline(ctx, kq.FamilyMedium, false)
	if len(tl.Entries) != 1 || !tl.Entries[0].IsPlaceholder {
		t.Fatalf("Timeline() before publish = %+v, want one placeholder entry", tl.Entries)
	}

	s, err := a.PublishSnapshot(ctx, strings.NewReader(testDocument))
	if err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}
	if s.Calories.Current != 1800 {
		t.Errorf("Calories.Current = %d, want 1800", s.Calories.Current)
	}
	if !a.op.Persisted() {
		t.Error("publish should persist the operation")
	}

	tl = a.Timeline(ctx, kq.FamilyMedium, false)
	if tl.Entries[0].IsPlaceholder {
		t.Error("Timeline() after publish returned placeholder")
	}
	if got := tl.Entries[0].Snapshot.Streak; got != 2 {
		t.Errorf("Streak = %d, want 2", got)
	}

	preview := a.Timeline(ctx, kq.FamilyMedium, true)
	if !preview.Entries[0].IsPlaceholder {
		t.Error("preview Timeline() should return placeholder")
	}

	loaded, err := a.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if loaded.LastUpdated != "2025-03-02T18:45:00Z" {
		t.Errorf("LastUpdated = %q", loaded.LastUpdated)
	}
}

func TestKQApp_PublishInvalid(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "SnapshotPublish")

	if _, err := a.PublishSnapshot(ctx, strings.NewReader(`{"streak": 1}`)); err == nil {
		t.Fatal("PublishSnapshot() expected error for incomplete document")
	}
	if a.op.Persisted() {
		t.Error("rejected document should not persist the operation")
	}
	if _, err := a.LoadSnapshot(ctx); err == nil {
		t.Error("LoadSnapshot() expected error, nothing was published")
	}
}

func TestKQApp_Provider(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Timeline.SmallRefresh = config.Duration{Duration: 5 * time.Minute}
	a := newTestApp(t, cfg, "WidgetTimeline")

	tests := []struct {
		family kq.WidgetFamily
		want   time.Duration
	}{
		{kq.FamilySmall, 5 * time.Minute},
		{kq.FamilyMedium, 10 * time.Minute},
		{kq.FamilyLarge, 15 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(string(tt.family), func(t *testing.T) {
			if got := a.Provider(tt.family).Interval(); got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKQApp_SyncOnce(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "SnapshotSync")

	changed, err := a.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if changed {
		t.Error("SyncOnce() with empty app store reported a change")
	}

	if err := a.appStore.Set(ctx, kq.AppSnapshotKey, []byte(testDocument)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	changed, err = a.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if !changed {
		t.Error("SyncOnce() = false, want true")
	}
	if _, err := a.LoadSnapshot(ctx); err != nil {
		t.Errorf("LoadSnapshot() after sync error = %v", err)
	}
}

func TestKQApp_WatchTimelines(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), "WidgetWatch")
	a.appStore.Set(context.Background(), kq.AppSnapshotKey, []byte(testDocument))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var timelines []kq.Timeline
	err := a.WatchTimelines(ctx, WatchOptions{Family: kq.FamilySmall, Sync: true}, func(tl kq.Timeline) {
		timelines = append(timelines, tl)
		if !tl.Entries[0].IsPlaceholder {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("WatchTimelines() error = %v", err)
	}
	if len(timelines) == 0 {
		t.Fatal("WatchTimelines() emitted nothing")
	}
	last := timelines[len(timelines)-1]
	if last.Entries[0].IsPlaceholder {
		t.Error("synced snapshot never reached the widget timeline")
	}
}

func TestKQApp_Call(t *testing.T) {
	ctx := context.Background()

	t.Run("read call is not recorded", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t), "HealthCall")

		res, err := a.Call(ctx, "isAvailable", nil)
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if res["available"] != true {
			t.Errorf("available = %v, want true", res["available"])
		}
		if a.op.Persisted() {
			t.Error("read-only call persisted the operation")
		}
	})

	t.Run("write call is recorded", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t), "HealthCall")

		if _, err := a.Call(ctx, "writeCalories", kq.Params{"calories": 450.0}); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		ops, err := a.History(ctx, 10)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(ops) != 1 {
			t.Fatalf("History() returned %d operations, want 1", len(ops))
		}
		if ops[0].Operation != "HealthCall" || ops[0].Parameters != "writeCalories" {
			t.Errorf("operation = %+v", ops[0])
		}

		res, err := a.Call(ctx, "readCalories", nil)
		if err != nil {
			t.Fatalf("readCalories error = %v", err)
		}
		if samples, _ := res["samples"].([]map[string]any); len(samples) != 1 {
			t.Errorf("readCalories returned %v, want one sample", res["samples"])
		}
	})

	t.Run("failed write marks operation failed", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.HealthStore.Unavailable = true
		a := newTestApp(t, cfg, "HealthCall")

		_, err := a.Call(ctx, "writeWater", kq.Params{"volume": 250.0})
		if !kq.IsKind(err, kq.KindCapabilityUnavailable) {
			t.Fatalf("Call() error = %v, want unavailable", err)
		}
		if a.op.Status != "error" {
			t.Errorf("Status = %q, want %q", a.op.Status, "error")
		}
	})
}

func TestKQApp_ExportImport(t *testing.T) {
	ctx := context.Background()
	at := time.Now().Add(-time.Hour)

	src := newTestApp(t, newTestConfig(t), "HealthWrite")
	for _, req := range []kq.WriteRequest{
		{Metric: kq.MetricEnergy, Value: 600, Date: &at},
		{Metric: kq.MetricProtein, Value: 35, Date: &at},
	} {
		if err := src.Write(ctx, req); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	var buf bytes.Buffer
	n, err := src.ExportHealth(ctx, &buf, at.Add(-time.Minute), at.Add(time.Minute))
	if err != nil {
		t.Fatalf("ExportHealth() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExportHealth() exported %d samples, want 2", n)
	}

	dst := newTestApp(t, newTestConfig(t), "HealthImport")
	n, err = dst.ImportHealth(ctx, &buf, "")
	if err != nil {
		t.Fatalf("ImportHealth() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ImportHealth() imported %d samples, want 2", n)
	}

	got, err := dst.Read(ctx, kq.ReadRequest{Metric: kq.MetricProtein, Days: 1})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 35 {
		t.Errorf("Read() = %+v, want one 35g sample", got)
	}
}

func TestKQApp_BuildSnapshot(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "SnapshotBuild")
	now := time.Now()

	if err := a.Write(ctx, kq.WriteRequest{Metric: kq.MetricEnergy, Value: 1250, Date: &now}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	foods := []kq.FoodItem{{Name: "Soup", Calories: 250, Time: "12:00"}}
	s, err := a.BuildSnapshot(ctx, now, foods, true)
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	if s.Calories.Current != 1250 || s.Calories.Target != 2500 {
		t.Errorf("Calories = %+v, want 1250 of 2500", s.Calories)
	}

	loaded, err := a.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(loaded.TodayFoods) != 1 || loaded.TodayFoods[0].Name != "Soup" {
		t.Errorf("TodayFoods = %+v", loaded.TodayFoods)
	}
}

func TestSetupKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig(dir)

	if err := SetupKeys(cfg, "correct horse"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	for _, p := range []string{cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("key file %s: %v", p, err)
		}
	}
}

func TestHealthStoreStatus(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.HealthStore = config.HealthStoreConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "data")}

	before, err := HealthStoreStatus(cfg)
	if err != nil {
		t.Fatalf("HealthStoreStatus() error = %v", err)
	}
	if before.Version != 0 {
		t.Errorf("Version before migrate = %d, want 0", before.Version)
	}

	after, err := MigrateHealthStore(cfg)
	if err != nil {
		t.Fatalf("MigrateHealthStore() error = %v", err)
	}
	if after.Version != after.Latest || after.Dirty {
		t.Errorf("status after migrate = %+v", after)
	}
}

func TestHealthSchema(t *testing.T) {
	schema, err := HealthSchema()
	if err != nil {
		t.Fatalf("HealthSchema() error = %v", err)
	}
	if !strings.Contains(schema, "CREATE TABLE samples") {
		t.Errorf("HealthSchema() missing samples table:\n%s", schema)
	}
}
