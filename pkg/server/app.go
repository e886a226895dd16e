package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinPulse/internal/handler/api"
	"FinPulse/internal/scheduler"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	applogger "FinPulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// App is the monitor process: the scheduler loop plus the status server.
type App struct {
	cfg         *config.Config
	sched       *scheduler.Scheduler
	log         *applogger.Logger
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

func New(cfg *config.Config, sched *scheduler.Scheduler, log *applogger.Logger) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, sched: sched, log: log}
}

// SetHTTPHandler replaces the status handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Run serves until ctx is cancelled or the scheduler stops on an invariant
// violation, then shuts the status server down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !a.cfg.Server.Disabled {
		if err := a.startHTTP(); err != nil {
			return err
		}
	}

	runErr := a.sched.Run(ctx)
	if runErr != nil {
		a.log.Error("monitor stopped", applogger.Error(runErr))
	} else {
		a.log.Info("shutdown signal received")
	}
	return a.shutdown(runErr)
}

// RunOnce runs one tick with the same wiring as the loop.
func (a *App) RunOnce(ctx context.Context) error {
	report, err := a.sched.RunOnce(ctx, "once", false)
	if err != nil {
		return err
	}
	if report == nil {
		return nil
	}
	a.log.Info("tick complete",
		applogger.String("tick_id", report.Tick.ID),
		applogger.Int("alerts", len(report.Alerts)),
		applogger.Int("warnings", len(report.Warnings)),
	)
	return nil
}

func (a *App) startHTTP() error {
	h := a.httpHandler
	if h == nil {
		h = api.NewStatusEchoHandler(a.log, a.sched)
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	}
	path := ""
	if a.cfg.Metrics.Enabled {
		path = a.cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetrics(path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	a.httpServer = xhttp.NewServer(h, opts...)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server start: %w", err)
	}
	return nil
}

func (a *App) shutdown(runErr error) error {
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return runErr
}
