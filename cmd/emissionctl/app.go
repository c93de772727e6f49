package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/archive"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/config"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/events"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/notice"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/observability"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/registry"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/store"
)

// app is the wired ledger stack for one invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	guard     *authz.Guard
	registry  *registry.Registry
	notices   *notice.Log
	ledger    *emission.Ledger
	recorder  emission.Recorder
	publisher events.Publisher
	telemetry *observability.Provider
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: slog.Default().With("component", "emissionctl"),
		store:  st,
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	a.guard = authz.NewGuard(a.store)
	a.registry = registry.New(a.store, a.guard)
	a.notices = notice.New(a.store, a.guard)
	a.ledger = emission.New(a.store, a.registry, a.notices, contracts.Identity(a.cfg.Ledger.Identity))

	publishers := events.Fanout{events.NewLogPublisher(a.logger)}
	if a.cfg.Redis.Enabled {
		rp := events.NewRedisPublisher(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Redis.Prefix)
		if err := rp.Ping(ctx); err != nil {
			_ = rp.Close()
			return fmt.Errorf("redis %s: %w", a.cfg.Redis.Addr, err)
		}
		publishers = append(publishers, rp)
	}
	a.publisher = publishers
	a.ledger.Subscribe(events.EmissionSubscriber(publishers))
	a.notices.AddHandler(events.NoticeHandler(publishers))

	ocfg := observability.DefaultConfig()
	ocfg.Enabled = a.cfg.OTel.Enabled
	ocfg.OTLPEndpoint = a.cfg.OTel.Endpoint
	ocfg.Insecure = a.cfg.OTel.Insecure
	ocfg.ServiceName = a.cfg.OTel.ServiceName
	telemetry, err := observability.New(ctx, ocfg)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	a.telemetry = telemetry
	a.recorder = telemetry.Instrument(a.ledger)
	return nil
}

func (a *app) archive(ctx context.Context) (archive.Store, error) {
	c := a.cfg.Archive
	return archive.NewStore(ctx, archive.Config{
		Backend:           c.Backend,
		Dir:               c.Dir,
		S3Bucket:          c.S3Bucket,
		S3Region:          c.S3Region,
		S3Endpoint:        c.S3Endpoint,
		S3Prefix:          c.S3Prefix,
		S3AccessKeyID:     c.S3AccessKeyID,
		S3SecretAccessKey: c.S3SecretAccessKey,
		GCSBucket:         c.GCSBucket,
		GCSPrefix:         c.GCSPrefix,
	})
}

// Close flushes telemetry and releases the publishers and the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
