package app

import (
	"context"
	"errors"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Shutdown stops the components in reverse start order:
//  1. HTTP API
//  2. Watcher (context cancel)
//  3. Scheduler, waiting for running transitions
//  4. Key-value store
//
// Safe to call more than once.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	var errs []error

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to stop api server", err)
			errs = append(errs, err)
		}
		cancel()
	}

	a.cancel()
	a.wg.Wait()

	if err := a.scheduler.Stop(); err != nil {
		a.logger.Error("failed to stop scheduler", err)
		errs = append(errs, err)
	}

	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}

	a.started = false
	a.listener = nil
	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeStores releases the key-value store. The app must be built again
// before reuse.
func (a *App) closeStores() error {
	a.built = false
	if a.kv == nil {
		return nil
	}
	err := a.kv.Close()
	a.kv = nil
	if err != nil {
		a.logger.Error("failed to close kv store", err)
	}
	return err
}
