package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops the running session (cancel, sweep, flatten), then the
// remaining components in dependency order.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// The session runs its own bounded shutdown sequence on cancellation.
	a.cancel()
	a.waitForSessions()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	err = a.shutdownStorage()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.cache.Close()

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) waitForSessions() {
	if !a.started.Load() {
		return
	}
	select {
	case <-a.sessionsDone:
	default:
		a.logger.Info("waiting-for-session-shutdown")
		<-a.sessionsDone
	}
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownStorage() error {
	return a.storage.Close()
}
