package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"
	"animalcensus/internal/repository"
)

const (
	defaultQueueSize     = 256
	defaultFlushInterval = time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
	defaultWriteTimeout  = 5 * time.Second
	defaultShutdownFlush = 2 * time.Second
)

type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	WriteTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.BatchSize > o.QueueSize {
		o.BatchSize = o.QueueSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	return o
}

// Sink decouples the pipeline from the telemetry store. Submit only touches an
// in-memory ring; a single writer goroutine moves points to the store.
type Sink struct {
	store  repository.TelemetryRepository
	logger *logger.Logger
	opts   Options

	mu      sync.Mutex
	buf     []models.TelemetryPoint
	head    int
	size    int
	started bool
	closed  bool

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}

	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

func NewSink(store repository.TelemetryRepository, log *logger.Logger, opts Options) *Sink {
	if store == nil {
		store = repository.Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	opts = opts.withDefaults()

	return &Sink{
		store:  store,
		logger: log,
		opts:   opts,
		buf:    make([]models.TelemetryPoint, opts.QueueSize),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it twice is a no-op.
func (s *Sink) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Submit enqueues a point. When the queue is full the oldest point is dropped.
func (s *Sink) Submit(p models.TelemetryPoint) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.dropped.Add(1)
		return
	}
	s.push(p)
	ready := s.size >= s.opts.BatchSize
	s.mu.Unlock()

	if ready {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) Dropped() uint64 { return s.dropped.Load() }
func (s *Sink) Written() uint64 { return s.written.Load() }
func (s *Sink) Failed() uint64  { return s.failed.Load() }

// Pending returns the number of queued points.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close stops the writer and flushes what is left, giving up after timeout.
// Points that could not be written by then are counted as dropped.
func (s *Sink) Close(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = defaultShutdownFlush
	}
	deadline := time.Now().Add(timeout)

	close(s.stop)
	if started {
		select {
		case <-s.done:
		case <-time.After(time.Until(deadline)):
			abandoned := s.discard()
			s.logger.Warning("Telemetry writer did not stop in %v, abandoning %d points", timeout, abandoned)
			return fmt.Errorf("telemetry flush timed out: %w", models.ErrStoreWriteFailed)
		}
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for {
		batch := s.pop(s.opts.BatchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := s.write(ctx, batch, nil); err != nil {
			abandoned := len(batch) + s.discard()
			s.dropped.Add(uint64(len(batch)))
			s.logger.Warning("Final telemetry flush failed, abandoning %d points: %v", abandoned, err)
			return fmt.Errorf("final telemetry flush: %w", err)
		}
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.notify:
			if !s.flush(ctx, true) {
				return
			}
		case <-ticker.C:
			if !s.flush(ctx, false) {
				return
			}
		}
	}
}

// flush writes queued points in batches. With fullOnly set, a trailing partial
// batch is left for the next tick. Returns false when the writer must exit.
func (s *Sink) flush(ctx context.Context, fullOnly bool) bool {
	for {
		s.mu.Lock()
		n := s.size
		s.mu.Unlock()
		if n == 0 || (fullOnly && n < s.opts.BatchSize) {
			return true
		}

		batch := s.pop(s.opts.BatchSize)
		err := s.write(ctx, batch, s.stop)
		if err == errInterrupted {
			s.requeue(batch)
			return false
		}
		if err != nil {
			s.failed.Add(uint64(len(batch)))
			s.logger.Warning("Dropping %d telemetry points after %d attempts: %v", len(batch), s.opts.RetryAttempts, err)
		}
	}
}

var errInterrupted = errors.New("telemetry write interrupted")

// write stores batch, retrying with exponential backoff. Closing interrupt
// aborts the backoff wait.
func (s *Sink) write(ctx context.Context, batch []models.TelemetryPoint, interrupt <-chan struct{}) error {
	backoff := s.opts.RetryBase
	var lastErr error

	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		err := s.store.WritePoints(writeCtx, batch)
		cancel()
		if err == nil {
			s.written.Add(uint64(len(batch)))
			return nil
		}
		lastErr = err

		if attempt == s.opts.RetryAttempts {
			break
		}
		s.logger.Warning("Telemetry write attempt %d/%d failed: %v", attempt, s.opts.RetryAttempts, err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-interrupt:
			timer.Stop()
			return errInterrupted
		case <-ctx.Done():
			timer.Stop()
			if interrupt != nil {
				return errInterrupted
			}
			return fmt.Errorf("%w: %v", models.ErrStoreWriteFailed, lastErr)
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %v", models.ErrStoreWriteFailed, lastErr)
}

func (s *Sink) push(p models.TelemetryPoint) {
	capacity := len(s.buf)
	if s.size == capacity {
		s.buf[s.head] = models.TelemetryPoint{}
		s.head = (s.head + 1) % capacity
		s.size--
		s.dropped.Add(1)
	}
	s.buf[(s.head+s.size)%capacity] = p
	s.size++
}

func (s *Sink) pop(n int) []models.TelemetryPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > s.size {
		n = s.size
	}
	out := make([]models.TelemetryPoint, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[s.head]
		s.buf[s.head] = models.TelemetryPoint{}
		s.head = (s.head + 1) % len(s.buf)
	}
	s.size -= n
	return out
}

// requeue puts an unwritten batch back at the front of the queue. Points that
// no longer fit are the oldest ones and are dropped.
func (s *Sink) requeue(batch []models.TelemetryPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.buf)
	for i := len(batch) - 1; i >= 0; i-- {
		if s.size == capacity {
			s.dropped.Add(uint64(i + 1))
			return
		}
		s.head = (s.head - 1 + capacity) % capacity
		s.buf[s.head] = batch[i]
		s.size++
	}
}

func (s *Sink) discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.size
	for i := range s.buf {
		s.buf[i] = models.TelemetryPoint{}
	}
	s.head, s.size = 0, 0
	s.dropped.Add(uint64(n))
	return n
}
