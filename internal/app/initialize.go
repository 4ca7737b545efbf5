package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/ruletoggle/internal/api"
	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/config"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
	"github.com/aatumaykin/ruletoggle/internal/migration"
	"github.com/aatumaykin/ruletoggle/internal/notify"
	"github.com/aatumaykin/ruletoggle/internal/rules"
	"github.com/aatumaykin/ruletoggle/internal/version"
)

const readHeaderTimeout = 10 * time.Second

// Initialize builds every component, migrates the document to the current
// block format, then starts the scheduler, the watcher and the API.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.New("application already started")
	}

	if err := a.build(); err != nil {
		return err
	}

	// 1. Bring blocks written by an older release to the current format
	// before any job can fire against them.
	if _, err := a.migrator.Upgrade(ctx); err != nil {
		return fmt.Errorf("failed to migrate document: %w", err)
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	// 2. Scheduler
	a.scheduler.SetHandler(a.manager.HandleJob)
	if err := a.scheduler.Start(a.ctx); err != nil {
		a.cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 3. Drop rules deleted by hand while the daemon was down
	if _, err := a.manager.Reconcile(a.ctx); err != nil {
		a.logger.Error("startup reconciliation failed", err)
	}

	// 4. Watcher
	if config.Enabled(a.config.Watcher.Enabled) {
		a.watcher = document.NewWatcher(a.documents, a.config.Debounce(), a.reconcile, a.logger)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.watcher.Run(a.ctx); err != nil {
				a.logger.Error("document watcher stopped", err)
			}
		}()
	}

	// 5. HTTP API
	ln, err := net.Listen("tcp", a.config.API.Listen)
	if err != nil {
		a.cancel()
		a.wg.Wait()
		_ = a.scheduler.Stop()
		return fmt.Errorf("failed to listen on %s: %w", a.config.API.Listen, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.handler.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("api server stopped", err)
		}
	}()

	a.started = true
	a.logger.Info(version.StartupMessage(),
		logger.Field{Key: "document", Value: a.documents.Path()},
		logger.Field{Key: "bot", Value: a.config.Bot.Name})
	return nil
}

// Migrate runs the upgrade handler once and closes the stores.
func (a *App) Migrate(ctx context.Context) (*migration.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.build(); err != nil {
		return nil, err
	}
	defer a.closeStores()
	return a.migrator.Upgrade(ctx)
}

func (a *App) reconcile(ctx context.Context) {
	res, err := a.manager.Reconcile(ctx)
	if err != nil {
		a.logger.Error("reconciliation failed", err)
		return
	}
	if len(res.Rules) > 0 {
		a.logger.Info("reconciliation cancelled orphaned rules", logger.Field{Key: "rules", Value: res.Rules})
	}
}

// build creates the components without starting anything.
func (a *App) build() error {
	if a.built {
		return nil
	}
	cfg := a.config

	format, ok := codec.DefaultRegistry().Lookup(version.Release())
	if !ok {
		return fmt.Errorf("no block format for version %s", version.Release())
	}
	blockCodec := format.Bind(cfg.Bot.Name)

	// Documents
	opts := []document.Option{document.WithLogger(a.logger)}
	if config.Enabled(cfg.Document.ValidateYAML) {
		opts = append(opts, document.WithValidator(document.YAMLValidator{}))
	}
	if config.Enabled(cfg.Document.History) {
		a.history = document.NewHistory(document.HistoryPath(cfg.Document.Path))
		opts = append(opts, document.WithHistory(a.history))
	}
	a.documents = document.NewFileStore(cfg.Document.Path, opts...)

	// Key-value store
	kv, err := kvstore.Open(kvstore.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.KVPath(),
		BusyTimeout: cfg.BusyTimeout(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open kv store: %w", err)
	}
	a.kv = kv

	// Jobs
	a.jobStorage = cron.NewStorage(cfg.JobsDir(), a.logger)
	a.scheduler = cron.NewScheduler(a.jobStorage, a.logger, cron.WithTick(cfg.OneshotTick()))

	if config.Enabled(cfg.Metrics.Enabled) {
		a.metrics = metrics.New(cfg.Metrics.Namespace, prometheus.NewRegistry())
	}

	a.notifier = rules.NopNotifier{}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, a.logger)
		if err != nil {
			a.closeStores()
			return err
		}
		a.notifier = tg
	}

	a.manager = rules.NewManager(rules.Config{
		Documents: a.documents,
		Jobs:      a.scheduler,
		Codec:     blockCodec,
		KV:        a.kv,
		Notifier:  a.notifier,
		Metrics:   a.metrics,
		Logger:    a.logger,
	})

	// Jobs are listed from storage so migration works before the
	// scheduler is started.
	a.migrator = &migration.Coordinator{
		KV:        a.kv,
		Documents: a.documents,
		Jobs:      a.jobStorage,
		Registry:  codec.DefaultRegistry(),
		Current:   version.Release(),
		Bot:       cfg.Bot.Name,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}

	a.handler = &api.Handler{
		Rules:   a.manager,
		KV:      a.kv,
		History: a.history,
		Metrics: a.metrics,
		Logger:  a.logger.Component("api"),
	}

	a.built = true
	return nil
}
