package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	applogger "EnerCast/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, m *models.MeasurementPoint) error
}

// RealtimePipeline sits between the telemetry stream and the ingestion backend.
// It validates, throttles per device, optionally transforms, and buffers
// readings while the downstream is failing.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	l         *applogger.Logger
	maxRPS    int
	bufSize   int
	bufCh     chan *models.MeasurementPoint
	stopCh    chan struct{}
	done      chan struct{}
	started   bool
	mu        sync.Mutex
	lastSeen  map[string]time.Time // per building/device last accepted time
	transform func(*models.MeasurementPoint) *models.MeasurementPoint
	now       func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max readings per second per device.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites readings before forwarding.
func WithTransform(fn func(*models.MeasurementPoint) *models.MeasurementPoint) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) { p.l = l }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		l:        applogger.Nop(),
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MeasurementPoint, p.bufSize)
	return p
}

// Start launches background flushing of buffered readings.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	defer close(p.done)
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case m := <-p.bufCh:
			if err := p.proc.Process(ctx, m); err != nil {
				if backoff < 2*time.Second {
					backoff *= 2
				}
				p.recordError("pipeline_flush")
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				select {
				case p.bufCh <- m:
				default:
					p.recordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = 50 * time.Millisecond
		}
	}
}

// Stop stops the flush loop and waits for it to exit. Buffered readings
// that were not flushed are dropped and counted.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("pipeline stopped with buffered readings", applogger.Int("buffered", n))
	}
}

// Buffered returns the number of readings waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards a reading, buffering it when the
// downstream fails.
func (p *RealtimePipeline) Process(ctx context.Context, m *models.MeasurementPoint) error {
	start := p.now()
	if err := validateMeasurement(m); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		m = p.transform(m)
		if err := validateMeasurement(m); err != nil {
			p.recordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(m.BuildingID+"/"+m.DeviceID+"/"+m.Metric, start) {
		p.recordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, m); err != nil {
		p.recordError("pipeline_process")
		select {
		case p.bufCh <- m:
		default:
			p.recordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *RealtimePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateMeasurement(m *models.MeasurementPoint) error {
	switch {
	case m == nil:
		return fmt.Errorf("measurement nil")
	case m.BuildingID == "":
		return fmt.Errorf("building_id empty")
	case m.Metric == "":
		return fmt.Errorf("metric empty")
	case m.Timestamp.IsZero():
		return fmt.Errorf("timestamp invalid")
	case math.IsNaN(m.Value) || math.IsInf(m.Value, 0):
		return fmt.Errorf("value not finite")
	case m.Metric == models.MetricPower && m.Value < 0:
		return fmt.Errorf("negative power")
	}
	return nil
}

func (p *RealtimePipeline) allow(key string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[key]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
