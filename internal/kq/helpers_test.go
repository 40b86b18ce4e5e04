package kq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/testutil"
)

type bridgeFixture struct {
	bridge *kq.HealthBridge
	store  kq.HealthStore
	clock  *testutil.StubClock
	logger *testutil.RecordingLogger
}

func newBridgeFixture(t *testing.T, opts kq.BridgeOptions) *bridgeFixture {
	t.Helper()
	return newBridgeFixtureWithStore(t, testutil.NewTestHealthStore(t), opts)
}

func newBridgeFixtureWithStore(t *testing.T, store kq.HealthStore, opts kq.BridgeOptions) *bridgeFixture {
	t.Helper()
	clock := testutil.FixedClock()
	logger := testutil.NewRecordingLogger()
	return &bridgeFixture{
		bridge: kq.NewHealthBridge(store, clock, testutil.NewStubIDGenerator(), logger, opts),
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// encodeOrFail writes s into store under the shared snapshot key.
func encodeOrFail(t *testing.T, store kq.SharedStore, s *kq.Snapshot) []byte {
	t.Helper()
	data, err := kq.EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	if err := store.Set(context.Background(), kq.SnapshotKey, data); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	return data
}

func ptr(t time.Time) *time.Time { return &t }

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func asBridgeError(err error, target **kq.BridgeError) bool {
	return errors.As(err, target)
}
