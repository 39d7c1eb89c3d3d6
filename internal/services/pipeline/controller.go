package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/metrics"
	"animalcensus/internal/models"
	"animalcensus/internal/services/control"
	"animalcensus/internal/services/counting"
	"animalcensus/internal/services/performance"
	"animalcensus/internal/services/telemetry"
)

const (
	defaultMaxFailures   = 10
	defaultRetryDelay    = 100 * time.Millisecond
	defaultShutdownFlush = 2 * time.Second
)

type Source interface {
	Next(ctx context.Context) (models.Frame, error)
	Props() models.SourceProps
	Close() error
}

type Detector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error)
}

type Annotator interface {
	Annotate(frame models.Frame, detections []models.Detection) models.Frame
	DrawOverlay(frame models.Frame, overlay models.Overlay) models.Frame
}

type Encoder interface {
	Write(frame models.Frame) error
	Close() error
}

// Display receives every annotated frame (window, live viewers).
type Display interface {
	Show(frame models.Frame)
}

type TelemetrySink interface {
	Submit(point models.TelemetryPoint)
	Close(timeout time.Duration) error
	Dropped() uint64
}

type SnapshotWriter interface {
	Save(snap counting.Snapshot, averageFPS float64) (string, error)
}

// Dependencies are the collaborators of one pipeline run. OpenEncoder,
// Displays, Snapshots, Commands and Metrics are optional.
type Dependencies struct {
	OpenSource  func() (Source, error)
	Detector    Detector
	Annotator   Annotator
	Aggregator  *counting.Aggregator
	Monitor     *performance.Monitor
	Sink        TelemetrySink
	OpenEncoder func(props models.SourceProps) (Encoder, error)
	Displays    []Display
	Snapshots   SnapshotWriter
	Commands    <-chan control.Command
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
}

type Options struct {
	MaxConsecutiveFailures int
	RetryDelay             time.Duration
	ShutdownFlushTimeout   time.Duration
	DrawOverlay            bool
	SaveOnExit             bool
	Point                  telemetry.PointMeta
}

// Controller runs the capture, detect, count and emit loop on a single
// goroutine. Only State may be called from other goroutines.
type Controller struct {
	deps Dependencies
	opts Options

	state   atomic.Int32
	started atomic.Bool

	source         Source
	encoder        Encoder
	lastDetections []models.Detection
	lastSeq        uint64
}

func NewController(deps Dependencies, opts Options) (*Controller, error) {
	var missing []string
	if deps.OpenSource == nil {
		missing = append(missing, "source")
	}
	if deps.Detector == nil {
		missing = append(missing, "detector")
	}
	if deps.Annotator == nil {
		missing = append(missing, "annotator")
	}
	if deps.Aggregator == nil {
		missing = append(missing, "aggregator")
	}
	if deps.Monitor == nil {
		missing = append(missing, "monitor")
	}
	if deps.Sink == nil {
		missing = append(missing, "telemetry sink")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline missing dependencies: %s", strings.Join(missing, ", "))
	}

	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = defaultMaxFailures
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.ShutdownFlushTimeout <= 0 {
		opts.ShutdownFlushTimeout = defaultShutdownFlush
	}

	c := &Controller{deps: deps, opts: opts}
	c.state.Store(int32(Starting))
	return c, nil
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.deps.Logger.Info("Pipeline %s -> %s", prev, s)
	}
}

// Run executes the pipeline until end of stream, a quit command, ctx
// cancellation or a fatal error. Shutdown always flushes telemetry and
// releases the encoder and the source. Only fatal errors are returned.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("pipeline already started")
	}

	var runErr error
	if err := c.start(); err != nil {
		runErr = err
	} else {
		c.setState(Running)
		runErr = c.loop(ctx)
	}

	if runErr != nil {
		c.setState(Faulting)
		c.deps.Logger.Error("Pipeline fault: %v", runErr)
	}
	c.shutdown()
	return runErr
}

func (c *Controller) start() error {
	source, err := c.deps.OpenSource()
	if err != nil {
		if !errors.Is(err, models.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
		}
		return err
	}
	c.source = source

	props := source.Props()
	c.deps.Logger.Info("Source opened: %s %dx%d @ %.1f fps", props.Kind, props.Width, props.Height, props.FPS)

	if c.deps.OpenEncoder != nil {
		encoder, err := c.deps.OpenEncoder(props)
		if err != nil {
			if !errors.Is(err, models.ErrOutputEncodeFailed) {
				err = fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
			}
			return err
		}
		c.encoder = encoder
	}
	return nil
}

func (c *Controller) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.deps.Logger.Info("Stop requested")
			return nil
		}

		cycleStart := time.Now()
		frame, err := c.acquire(ctx)
		switch {
		case errors.Is(err, models.ErrEndOfStream):
			c.deps.Logger.Info("End of video stream")
			return nil
		case ctx.Err() != nil:
			c.deps.Logger.Info("Stop requested")
			return nil
		case err != nil:
			return err
		}

		if err := c.process(ctx, frame, cycleStart); err != nil {
			if ctx.Err() != nil {
				c.deps.Logger.Info("Stop requested")
				return nil
			}
			return err
		}

		if c.pollCommand() {
			return nil
		}
	}
}

// acquire reads the next frame, retrying transient failures until
// MaxConsecutiveFailures is reached.
func (c *Controller) acquire(ctx context.Context) (models.Frame, error) {
	failures := 0
	for {
		frame, err := c.source.Next(ctx)
		if err == nil {
			return frame, nil
		}
		if errors.Is(err, models.ErrEndOfStream) || ctx.Err() != nil {
			return models.Frame{}, err
		}

		failures++
		c.deps.Metrics.SourceReadFailed()
		c.deps.Logger.Warning("Frame read failed (%d/%d): %v", failures, c.opts.MaxConsecutiveFailures, err)
		if failures >= c.opts.MaxConsecutiveFailures {
			return models.Frame{}, fmt.Errorf("%w: %d consecutive read failures, last: %v", models.ErrSourceLost, failures, err)
		}

		select {
		case <-ctx.Done():
			return models.Frame{}, ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func (c *Controller) process(ctx context.Context, frame models.Frame, cycleStart time.Time) error {
	detStart := time.Now()
	detections, err := c.deps.Detector.Detect(ctx, frame)
	detDuration := time.Since(detStart)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.deps.Metrics.DetectionFailed()
		c.deps.Logger.Warning("Detection failed on frame %d, counting zero: %v", frame.Seq, err)
		detections = nil
	}

	annotated := c.deps.Annotator.Annotate(frame, detections)

	counts := c.deps.Aggregator.Tally(detections)
	c.deps.Aggregator.Fold(counts)

	perf := c.deps.Monitor.Record(performance.StageDurations{
		Total:     time.Since(cycleStart),
		Detection: detDuration,
	})
	c.deps.Metrics.ObserveFrame(counts, perf)

	c.deps.Sink.Submit(telemetry.NewPoint(c.opts.Point, counts, perf, time.Now()))

	if c.opts.DrawOverlay {
		snap := c.deps.Aggregator.Snapshot()
		annotated = c.deps.Annotator.DrawOverlay(annotated, models.Overlay{
			Current:     counts,
			MaxPerFrame: snap.MaxPerFrame,
			RollingFPS:  perf.RollingFPS,
			FrameSeq:    frame.Seq,
			Detections:  len(detections),
		})
	}

	if c.encoder != nil {
		if err := c.encoder.Write(annotated); err != nil {
			if !errors.Is(err, models.ErrOutputEncodeFailed) {
				err = fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
			}
			return fmt.Errorf("frame %d: %w", frame.Seq, err)
		}
	}

	for _, d := range c.deps.Displays {
		d.Show(annotated)
	}

	c.lastDetections = detections
	c.lastSeq = frame.Seq
	return nil
}

// pollCommand handles at most one pending command and reports whether the
// pipeline should stop.
func (c *Controller) pollCommand() bool {
	if c.deps.Commands == nil {
		return false
	}

	select {
	case cmd := <-c.deps.Commands:
		switch cmd {
		case control.Quit:
			c.deps.Logger.Info("Quit requested")
			return true
		case control.Save:
			c.saveSnapshot()
			c.logSummary()
		case control.Info:
			c.logDetections()
		}
	default:
	}
	return false
}

func (c *Controller) saveSnapshot() {
	if c.deps.Snapshots == nil {
		c.deps.Logger.Warning("No snapshot directory configured, skipping save")
		return
	}
	if _, err := c.deps.Snapshots.Save(c.deps.Aggregator.Snapshot(), c.deps.Monitor.Average()); err != nil {
		c.deps.Logger.Warning("Failed to save snapshot: %v", err)
	}
}

func (c *Controller) logDetections() {
	c.deps.Logger.Info("Frame %d: %d detection(s)", c.lastSeq, len(c.lastDetections))
	for i, d := range c.lastDetections {
		c.deps.Logger.Info("  %d. %s at (%d,%d) %dx%d", i+1, d.Label(), d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
	}
}

func (c *Controller) logSummary() {
	snap := c.deps.Aggregator.Snapshot()

	names := make([]string, 0, len(snap.Totals))
	for name := range snap.Totals {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d (max %d)", name, snap.Totals[name], snap.MaxPerFrame[name]))
	}
	if len(parts) == 0 {
		parts = append(parts, "no animals")
	}

	c.deps.Logger.Info("Processed %d frames, average FPS %.2f, total %d: %s",
		snap.Frames, c.deps.Monitor.Average(), snap.Totals.Sum(), strings.Join(parts, ", "))
}

func (c *Controller) shutdown() {
	c.setState(Stopping)

	if err := c.deps.Sink.Close(c.opts.ShutdownFlushTimeout); err != nil {
		c.deps.Logger.Warning("Telemetry flush incomplete: %v", err)
	}

	if c.encoder != nil {
		if err := c.encoder.Close(); err != nil {
			c.deps.Logger.Warning("Failed to close output: %v", err)
		}
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			c.deps.Logger.Warning("Failed to close source: %v", err)
		}
	}

	if c.opts.SaveOnExit && c.deps.Snapshots != nil && c.deps.Aggregator.Snapshot().Frames > 0 {
		c.saveSnapshot()
	}

	c.logSummary()
	if dropped := c.deps.Sink.Dropped(); dropped > 0 {
		c.deps.Logger.Warning("Telemetry points dropped this session: %d", dropped)
	}

	c.setState(Stopped)
}
