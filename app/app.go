package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/soocke/board-calibrator-go/debug"
)

const shutdownTimeout = 5 * time.Second

// App runs the assembled container until its context is cancelled.
type App struct {
	c    *AppContainer
	addr string
}

func NewApp(c *AppContainer) *App { return &App{c: c} }

// Addr is the bound status server address once Run has started it.
func (a *App) Addr() string { return a.addr }

// Run starts the frame sources, the calibration session and the status server,
// then blocks until ctx is done and stops everything in reverse order. ready,
// when non-nil, is called once everything is up.
func (a *App) Run(ctx context.Context, ready func()) error {
	c := a.c
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	c.Source.Start()
	if c.Fallback != nil {
		c.Fallback.Start()
	}
	c.Session.Start()

	if c.Config.ListenAddr != "" {
		addr, err := c.Server.Start(c.Config.ListenAddr)
		if err != nil {
			c.Session.Stop()
			a.stopSources()
			return errors.Wrapf(err, "listen %s", c.Config.ListenAddr)
		}
		a.addr = addr
	}

	if c.Config.Debug {
		interval := c.Config.StatsInterval()
		debug.StartGoroutineLogger(ctx, interval, log)
		debug.StartMemLogger(ctx, interval, log)
	}

	log.Info("calibrator running", "source", c.Config.Source, "addr", a.addr)
	if ready != nil {
		ready()
	}
	<-ctx.Done()

	log.Info("calibrator shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := c.Server.Shutdown(shutdownCtx)
	c.Session.Stop()
	a.stopSources()
	if err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

func (a *App) stopSources() {
	if a.c.Fallback != nil {
		a.c.Fallback.Stop()
	}
	a.c.Source.Stop()
}
