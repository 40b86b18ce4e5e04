package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"kaloriq-go/internal/config"
	"kaloriq-go/internal/database"
	"kaloriq-go/internal/database/migrations"
	"kaloriq-go/internal/encryption"
	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/sharedstore"
)

// KQApp is the application layer between the CLI and the kq package.
// It constructs all dependencies from config, exposes the operations the
// commands run, and records mutating commands in the operation log.
type KQApp struct {
	cfg       *config.Config
	shared    kq.SharedStore
	appStore  kq.SharedStore
	health    *database.SQLiteHealthStore
	encryptor kq.Encryptor
	logger    kq.Logger
	clock     kq.Clock
	center    *kq.TimelineCenter
	bridge    *kq.HealthBridge
	op        *Operation
	closers   []io.Closer
}

// NewKQApp creates a fully wired KQApp from cfg. operation names the CLI
// command being run (e.g. "SnapshotPublish", "HealthCall"). The caller must
// call Close when done.
func NewKQApp(ctx context.Context, cfg *config.Config, operation string) (*KQApp, error) {
	a := &KQApp{
		cfg:    cfg,
		clock:  kq.RealClock{},
		center: kq.NewTimelineCenter(),
		op:     NewOperation(operation, ""),
	}
	if err := a.setup(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *KQApp) setup(ctx context.Context) error {
	cfg := a.cfg
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = kq.DefaultNamespace
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, opID, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, logCloser)

	a.shared, err = sharedstore.NewStoreFromConfig(ctx, cfg.SharedStore, namespace)
	if err != nil {
		return fmt.Errorf("creating shared store: %w", err)
	}
	a.closers = append(a.closers, a.shared)

	a.appStore, err = sharedstore.NewStoreFromConfig(ctx, cfg.AppStore, namespace)
	if err != nil {
		return fmt.Errorf("creating app store: %w", err)
	}
	a.closers = append(a.closers, a.appStore)

	a.health, err = database.NewHealthStoreFromConfig(cfg.HealthStore)
	if err != nil {
		return fmt.Errorf("creating health store: %w", err)
	}
	a.closers = append(a.closers, a.health)

	if err := a.health.CheckMigrations(); err != nil {
		return fmt.Errorf("health database schema out of date (run `kq db migrate`): %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	a.bridge = kq.NewHealthBridge(a.health, a.clock, kq.UUIDGenerator{}, a.logger, kq.BridgeOptions{
		Source:               cfg.SourceName,
		EnforceAuthorization: cfg.HealthStore.EnforceAuthorization,
	})
	return nil
}

// persistOperation saves the operation to the health database, giving it an
// auto-increment ID. Only commands that change stored data call it.
func (a *KQApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	rec, err := a.health.CreateOperation(ctx, a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = rec.ID
	return nil
}

// track runs fn as a persisted operation, marking it failed on error.
func (a *KQApp) track(ctx context.Context, parameters string, fn func() error) error {
	if err := a.persistOperation(ctx, parameters); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// Logger returns the application logger.
func (a *KQApp) Logger() kq.Logger { return a.logger }

// Provider returns a snapshot provider for family using the configured
// refresh period.
func (a *KQApp) Provider(family kq.WidgetFamily) *kq.SnapshotProvider {
	var interval time.Duration
	switch family {
	case kq.FamilySmall:
		interval = a.cfg.Timeline.SmallRefresh.Duration
	case kq.FamilyMedium:
		interval = a.cfg.Timeline.MediumRefresh.Duration
	case kq.FamilyLarge:
		interval = a.cfg.Timeline.LargeRefresh.Duration
	}
	return kq.NewSnapshotProvider(a.shared, family, interval, a.logger)
}

// Timeline builds the current timeline for family. With preview set the
// entry is always the placeholder.
func (a *KQApp) Timeline(ctx context.Context, family kq.WidgetFamily, preview bool) kq.Timeline {
	p := a.Provider(family)
	now := a.clock.Now()
	if preview {
		return kq.Timeline{
			Entries:     []kq.Entry{p.SnapshotForContext(ctx, now, true)},
			ReloadAfter: p.RefreshPolicy(now),
		}
	}
	return p.Timeline(ctx, now)
}

// WatchOptions configure WatchTimelines.
type WatchOptions struct {
	Family kq.WidgetFamily
	// Sync also runs the app-to-shared snapshot copy loop.
	Sync bool
}

// WatchTimelines emits timelines for a widget until ctx is done. Timelines
// are rebuilt on schedule, after every sync that changed the snapshot, and
// after writes reported by the shared store.
func (a *KQApp) WatchTimelines(ctx context.Context, opts WatchOptions, emit func(kq.Timeline)) error {
	reload, unsubscribe := a.center.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	if n, ok := a.shared.(kq.ChangeNotifier); ok {
		g.Go(func() error { return a.center.Forward(gctx, n, kq.SnapshotKey) })
	}
	if opts.Sync {
		s := kq.NewSnapshotSync(a.appStore, a.shared, a.center, a.logger)
		g.Go(func() error { return s.Run(gctx, a.cfg.Timeline.SyncInterval.Duration) })
	}
	p := a.Provider(opts.Family)
	g.Go(func() error { return p.Watch(gctx, a.clock, reload, emit) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// LoadSnapshot returns the snapshot in the shared store, reporting why it
// could not be read.
func (a *KQApp) LoadSnapshot(ctx context.Context) (*kq.Snapshot, error) {
	return a.Provider(kq.FamilyMedium).Load(ctx)
}

// PublishSnapshot decodes a snapshot document from r and publishes it.
func (a *KQApp) PublishSnapshot(ctx context.Context, r io.Reader) (*kq.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	s, err := kq.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	err = a.track(ctx, "", func() error {
		return kq.NewSnapshotPublisher(a.shared, a.center, a.logger).Publish(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildSnapshot derives day's snapshot from the health store. When publish
// is set the result replaces the shared document.
func (a *KQApp) BuildSnapshot(ctx context.Context, day time.Time, foods []kq.FoodItem, publish bool) (*kq.Snapshot, error) {
	g := a.cfg.Goals
	b := kq.NewSnapshotBuilder(a.health, kq.Goals{Calories: g.Calories, Protein: g.Protein, Carbs: g.Carbs, Fats: g.Fats}, a.clock)
	s, err := b.BuildSnapshot(ctx, day, foods)
	if err != nil {
		return nil, err
	}
	if !publish {
		return s, nil
	}
	err = a.track(ctx, day.Format(time.DateOnly), func() error {
		return kq.NewSnapshotPublisher(a.shared, a.center, a.logger).Publish(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SyncOnce copies the app's snapshot into the shared store once.
func (a *KQApp) SyncOnce(ctx context.Context) (bool, error) {
	return kq.NewSnapshotSync(a.appStore, a.shared, a.center, a.logger).SyncOnce(ctx)
}

// RunSync copies the app's snapshot on the configured interval until ctx
// is done.
func (a *KQApp) RunSync(ctx context.Context) error {
	err := kq.NewSnapshotSync(a.appStore, a.shared, a.center, a.logger).Run(ctx, a.cfg.Timeline.SyncInterval.Duration)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Call invokes a bridge method. Calls that write health data or grants are
// recorded in the operation log.
func (a *KQApp) Call(ctx context.Context, method string, params kq.Params) (kq.Result, error) {
	if !mutatingCall(method) {
		return a.bridge.Invoke(ctx, method, params)
	}
	var res kq.Result
	err := a.track(ctx, method, func() error {
		var err error
		res, err = a.bridge.Invoke(ctx, method, params)
		return err
	})
	return res, err
}

// Write saves one health sample.
func (a *KQApp) Write(ctx context.Context, req kq.WriteRequest) error {
	return a.track(ctx, string(req.Metric), func() error {
		return a.bridge.Write(ctx, req)
	})
}

// Read returns samples of one metric.
func (a *KQApp) Read(ctx context.Context, req kq.ReadRequest) ([]kq.SampleValue, error) {
	return a.bridge.Read(ctx, req)
}

// ExportHealth writes an encrypted archive of samples in [start, end] to w.
func (a *KQApp) ExportHealth(ctx context.Context, w io.Writer, start, end time.Time) (int, error) {
	if !a.encryptor.IsConfigured() {
		return 0, fmt.Errorf("encryption keys not found (run `kq config keys init`)")
	}
	return a.bridge.Export(ctx, a.encryptor, w, start, end)
}

// ImportHealth unlocks the private key with passphrase and imports the
// archive read from r.
func (a *KQApp) ImportHealth(ctx context.Context, r io.Reader, passphrase string) (int, error) {
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}
	var n int
	err = a.track(ctx, "", func() error {
		var err error
		n, err = a.bridge.Import(ctx, dec, r)
		return err
	})
	return n, err
}

// BackupHealth writes a consistent copy of the health database to destPath.
func (a *KQApp) BackupHealth(destPath string) error {
	return a.health.BackupTo(destPath)
}

// History returns the most recent recorded operations, newest first.
func (a *KQApp) History(ctx context.Context, limit int) ([]*kq.OperationRecord, error) {
	return a.health.ListOperations(ctx, limit)
}

// Close finalizes a persisted operation and closes all resources.
func (a *KQApp) Close() error {
	var firstErr error
	if a.op.Persisted() && a.health != nil {
		if err := a.health.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// closeAll closes resources in reverse order of creation.
func (a *KQApp) closeAll() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// MigrateHealthStore applies pending migrations to the configured health
// database and returns its resulting status.
func MigrateHealthStore(cfg *config.Config) (*migrations.Status, error) {
	s, err := database.NewHealthStoreFromConfig(cfg.HealthStore)
	if err != nil {
		return nil, fmt.Errorf("opening health store: %w", err)
	}
	defer s.Close()

	if err := s.MigrateUp(); err != nil {
		return nil, fmt.Errorf("migrating health store: %w", err)
	}
	return migrations.GetStatus(s.DB())
}

// HealthStoreStatus reports the schema version of the configured health
// database without changing it.
func HealthStoreStatus(cfg *config.Config) (*migrations.Status, error) {
	s, err := database.NewHealthStoreFromConfig(cfg.HealthStore)
	if err != nil {
		return nil, fmt.Errorf("opening health store: %w", err)
	}
	defer s.Close()
	return migrations.GetStatus(s.DB())
}

// SetupKeys generates the export key pair protected by passphrase.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}

// HealthSchema returns the schema the migrations produce, read from a
// freshly migrated in-memory database.
func HealthSchema() (string, error) {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		return "", fmt.Errorf("migrating: %w", err)
	}
	return migrations.Schema(db)
}
