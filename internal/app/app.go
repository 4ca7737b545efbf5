// Package app wires the daemon together: document store, key-value store,
// scheduler, rule manager, migration, watcher and the HTTP API.
package app

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/aatumaykin/ruletoggle/internal/api"
	"github.com/aatumaykin/ruletoggle/internal/config"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
	"github.com/aatumaykin/ruletoggle/internal/migration"
	"github.com/aatumaykin/ruletoggle/internal/rules"
)

// App holds every component and manages their lifecycle.
type App struct {
	config *config.Config
	logger *logger.Logger

	// Storage
	documents  *document.FileStore
	history    *document.History
	kv         kvstore.Store
	jobStorage *cron.Storage

	// Rule handling
	scheduler *cron.Scheduler
	manager   *rules.Manager
	migrator  *migration.Coordinator
	notifier  rules.Notifier
	metrics   *metrics.Metrics

	// Background
	watcher  *document.Watcher
	handler  *api.Handler
	server   *http.Server
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	built   bool
	started bool
}

// New creates an App. Components are built by Initialize or Migrate.
func New(cfg *config.Config, log *logger.Logger) *App {
	if log == nil {
		log = logger.Discard()
	}
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run initializes the app, blocks until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		a.closeStores()
		return err
	}

	a.logger.Info("application is running", logger.Field{Key: "listen", Value: a.Addr()})

	<-ctx.Done()

	return a.Shutdown()
}

// Addr is the address the API listens on, once started.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Manager is the rule manager, once built.
func (a *App) Manager() *rules.Manager {
	return a.manager
}
