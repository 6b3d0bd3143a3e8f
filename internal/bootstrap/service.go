package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lerian-labs/icvsb-gateway/internal/cache"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
	"github.com/lerian-labs/icvsb-gateway/internal/webhook"
)

// Service is the application glue: it embeds *Server and a Logger, and
// Run is the only call main.go needs to make.
type Service struct {
	*Server
	mlog.Logger

	store       *store.Store
	cache       *cache.Cache
	webhookPub  *webhook.Publisher
	storeLogger mlog.Logger
}

// Run blocks until SIGINT/SIGTERM, running the HTTP server and (if
// configured) the webhook delivery consumer, then closes every
// collaborator in turn.
func (app *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.webhookPub != nil {
		if err := app.webhookPub.StartConsumer(ctx); err != nil {
			app.Logger.Errorf("bootstrap: start webhook consumer: %v", err)
		}
	}

	err := app.Server.Run(ctx)

	app.shutdown()

	return err
}

func (app *Service) shutdown() {
	if app.webhookPub != nil {
		if err := app.webhookPub.Close(); err != nil {
			app.Logger.Errorf("bootstrap: close webhook publisher: %v", err)
		}
	}

	if err := app.cache.Close(); err != nil {
		app.Logger.Errorf("bootstrap: close cache: %v", err)
	}

	if err := app.store.Close(); err != nil {
		app.Logger.Errorf("bootstrap: close store: %v", err)
	}

	if app.storeLogger != nil {
		_ = app.storeLogger.Sync()
	}

	_ = app.Logger.Sync()
}
