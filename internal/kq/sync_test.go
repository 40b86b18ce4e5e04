package kq_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/testutil"
)

func TestSnapshotSync_SyncOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing to copy", func(t *testing.T) {
		app, shared := testutil.NewTestSharedStore(), testutil.NewTestSharedStore()
		s := kq.NewSnapshotSync(app, shared, nil, kq.NewNopLogger())

		changed, err := s.SyncOnce(ctx)
		if err != nil || changed {
			t.Errorf("SyncOnce() = %v, %v, want false, nil", changed, err)
		}
		if _, ok, _ := shared.Get(ctx, kq.SnapshotKey); ok {
			t.Error("shared store written without a source document")
		}
	})

	t.Run("copies and reloads once", func(t *testing.T) {
		app, shared := testutil.NewTestSharedStore(), testutil.NewTestSharedStore()
		center := kq.NewTimelineCenter()
		reload, cancel := center.Subscribe()
		defer cancel()
		s := kq.NewSnapshotSync(app, shared, center, kq.NewNopLogger())

		app.Set(ctx, kq.AppSnapshotKey, []byte(sampleDocument))

		changed, err := s.SyncOnce(ctx)
		if err != nil || !changed {
			t.Fatalf("SyncOnce() = %v, %v, want true, nil", changed, err)
		}
		got, _, _ := shared.Get(ctx, kq.SnapshotKey)
		if !bytes.Equal(got, []byte(sampleDocument)) {
			t.Errorf("shared value = %q, want the app document", got)
		}
		select {
		case <-reload:
		default:
			t.Error("no reload requested after change")
		}

		changed, err = s.SyncOnce(ctx)
		if err != nil || changed {
			t.Errorf("second SyncOnce() = %v, %v, want false, nil", changed, err)
		}
		select {
		case <-reload:
			t.Error("reload requested although nothing changed")
		default:
		}
	})

	t.Run("read failure", func(t *testing.T) {
		boom := errors.New("prefs locked")
		s := kq.NewSnapshotSync(&testutil.FailingSharedStore{Err: boom}, testutil.NewTestSharedStore(), nil, kq.NewNopLogger())
		if _, err := s.SyncOnce(ctx); !errors.Is(err, boom) {
			t.Errorf("SyncOnce() error = %v, want %v", err, boom)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		boom := errors.New("disk full")
		app := testutil.NewTestSharedStore()
		app.Set(ctx, kq.AppSnapshotKey, []byte("{}"))
		s := kq.NewSnapshotSync(app, &testutil.FailingSharedStore{Err: boom}, nil, kq.NewNopLogger())
		if _, err := s.SyncOnce(ctx); !errors.Is(err, boom) {
			t.Errorf("SyncOnce() error = %v, want %v", err, boom)
		}
	})
}

func TestSnapshotSync_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, shared := testutil.NewTestSharedStore(), testutil.NewTestSharedStore()
	s := kq.NewSnapshotSync(app, shared, nil, kq.NewNopLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	app.Set(context.Background(), kq.AppSnapshotKey, []byte(sampleDocument))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := shared.Get(context.Background(), kq.SnapshotKey); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run() never copied the document")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
