package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	applogger "EnerCast/pkg/logger"
)

// BatchingSink buffers single-row writes and forwards them to the wrapped
// sink with StoreBatch, flushing when size rows are pending or every interval.
type BatchingSink struct {
	next     domrepo.MeasurementSink
	size     int
	interval time.Duration
	l        *applogger.Logger

	mu      sync.Mutex
	pending []*models.MeasurementPoint

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ domrepo.MeasurementSink = (*BatchingSink)(nil)

// NewBatchingSink starts the periodic flusher. Close flushes what is left.
func NewBatchingSink(next domrepo.MeasurementSink, size int, interval time.Duration, l *applogger.Logger) *BatchingSink {
	if size <= 0 {
		size = 500
	}
	if interval <= 0 {
		interval = time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	s := &BatchingSink{
		next:     next,
		size:     size,
		interval: interval,
		l:        l,
		pending:  make([]*models.MeasurementPoint, 0, size),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *BatchingSink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.l.Warn("periodic flush failed", applogger.Error(err))
			}
		}
	}
}

// Store queues m and flushes synchronously once the batch is full.
func (s *BatchingSink) Store(ctx context.Context, m *models.MeasurementPoint) error {
	s.mu.Lock()
	s.pending = append(s.pending, m)
	full := len(s.pending) >= s.size
	s.mu.Unlock()
	if full {
		return s.Flush(ctx)
	}
	return nil
}

// StoreBatch bypasses the buffer.
func (s *BatchingSink) StoreBatch(ctx context.Context, ms []*models.MeasurementPoint) error {
	return s.next.StoreBatch(ctx, ms)
}

// Flush writes pending rows. On failure the rows are put back in front of
// anything queued meanwhile.
func (s *BatchingSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make([]*models.MeasurementPoint, 0, s.size)
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := s.next.StoreBatch(ctx, batch); err != nil {
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		return fmt.Errorf("flush %d measurements: %w", len(batch), err)
	}
	return nil
}

// Pending returns the number of buffered rows.
func (s *BatchingSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops the flusher and writes the remaining rows. The wrapped sink is
// left open.
func (s *BatchingSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		err = s.Flush(context.Background())
	})
	return err
}
