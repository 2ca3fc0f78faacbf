package usecase

import (
	"context"
	"sync"
	"time"

	"EnerCast/internal/domain/models"
	drepo "EnerCast/internal/domain/repository"
	mid "EnerCast/internal/middleware"
	applogger "EnerCast/pkg/logger"
)

const maxReconnectBackoff = time.Minute

// MeasurementCollector reads the telemetry stream and feeds readings through
// the pipeline, reconnecting when the stream fails.
type MeasurementCollector struct {
	stream  drepo.MeasurementStream
	proc    *MeasurementProcessor
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	l       *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMeasurementCollector creates a collector. pipe may be nil, in which case
// readings go straight to the processor.
func NewMeasurementCollector(stream drepo.MeasurementStream, proc *MeasurementProcessor, pipe *mid.RealtimePipeline, metrics drepo.Metrics, l *applogger.Logger) *MeasurementCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &MeasurementCollector{stream: stream, proc: proc, pipe: pipe, metrics: metrics, l: l}
}

func (c *MeasurementCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and begins consuming in the background.
func (c *MeasurementCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

func (c *MeasurementCollector) run(ctx context.Context) {
	backoff := time.Second
	for {
		points, errs := c.stream.Read(ctx)
		if err := c.consume(ctx, points, errs); err != nil {
			c.recordError("stream")
			c.l.Warn("telemetry stream failed", applogger.Error(err))
		}
		for {
			if ctx.Err() != nil {
				return
			}
			err := c.stream.Reconnect(ctx)
			if err == nil {
				backoff = time.Second
				c.l.Info("telemetry stream reconnected")
				break
			}
			c.recordError("stream_reconnect")
			c.l.Warn("telemetry reconnect failed",
				applogger.Error(err),
				applogger.Duration("retry_in", backoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReconnectBackoff)
		}
	}
}

// consume drains the stream until it ends, returning the stream error if any.
func (c *MeasurementCollector) consume(ctx context.Context, points <-chan *models.MeasurementPoint, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case m, ok := <-points:
			if !ok {
				return nil
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, m)
			} else {
				err = c.proc.Process(ctx, m)
			}
			if err != nil {
				c.l.Debug("measurement not forwarded",
					applogger.String("building_id", m.BuildingID),
					applogger.Error(err),
				)
			}
		}
	}
}

func (c *MeasurementCollector) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

// Shutdown stops consuming, drains the pipeline and closes the stream.
func (c *MeasurementCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return err
}
