package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	xhttp "EnerCast/pkg/http"
	pkgkafka "EnerCast/pkg/kafka"
	applogger "EnerCast/pkg/logger"
)

// Collector is a background ingestion loop.
type Collector interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// App encapsulates the application lifecycle: HTTP API, optional telemetry
// collector, optional Kafka consumer, and the infrastructure they share.
type App struct {
	l               *applogger.Logger
	httpServer      *xhttp.Server
	collector       Collector
	consumer        *pkgkafka.Consumer
	handlers        []pkgkafka.MessageHandler
	closers         []namedCloser
	shutdownTimeout time.Duration
}

type namedCloser struct {
	name string
	c    io.Closer
}

type AppOption func(*App)

// WithCollector runs c alongside the HTTP server.
func WithCollector(c Collector) AppOption {
	return func(a *App) { a.collector = c }
}

// WithConsumer runs the consumer with the given topic handlers.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) AppOption {
	return func(a *App) {
		a.consumer = c
		a.handlers = handlers
	}
}

// WithCloser registers a resource closed on shutdown. Closers run in reverse
// registration order.
func WithCloser(name string, c io.Closer) AppOption {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates a new App.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...AppOption) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{l: l, httpServer: httpServer, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		_ = a.shutdown()
		return err
	}

	if err := a.httpServer.Start(); err != nil {
		return errors.Join(fmt.Errorf("start http server: %w", err), a.shutdown())
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return fmt.Errorf("start collector: %w", err)
		}
		a.l.Info("telemetry collector started")
	}
	if a.consumer != nil && len(a.handlers) > 0 {
		topics := make([]string, 0, len(a.handlers))
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.Strings("topics", topics))
	}
	return nil
}

// shutdown stops intake first, then the API, then releases infrastructure.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	a.l.Info("shutting down")

	var errs []error
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
