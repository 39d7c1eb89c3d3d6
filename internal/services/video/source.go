package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"animalcensus/internal/models"

	"gocv.io/x/gocv"
)

const defaultFPS = 25

var errReadFailed = errors.New("frame read failed")

type readResult struct {
	frame models.Frame
	err   error
}

// capturer is the part of gocv.VideoCapture the source reads from.
type capturer interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// CaptureSource reads frames from a webcam, a video file or a network stream.
type CaptureSource struct {
	capture     capturer
	props       models.SourceProps
	readTimeout time.Duration
	seq         uint64
	pending     chan readResult // read in flight on a device or network source
	closed      bool
}

// Classify tells how a source spec string will be opened.
func Classify(spec string) models.SourceKind {
	if _, err := strconv.Atoi(spec); err == nil {
		return models.SourceDevice
	}
	if strings.Contains(spec, "://") {
		return models.SourceNetwork
	}
	return models.SourceFile
}

// OpenSource opens spec. Failures wrap models.ErrSourceUnavailable.
func OpenSource(spec string, readTimeout time.Duration) (*CaptureSource, error) {
	kind := Classify(spec)

	var (
		capture *gocv.VideoCapture
		err     error
	)
	switch kind {
	case models.SourceDevice:
		id, _ := strconv.Atoi(spec)
		capture, err = gocv.VideoCaptureDevice(id)
	case models.SourceFile:
		if _, statErr := os.Stat(spec); statErr != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, statErr)
		}
		capture, err = gocv.VideoCaptureFile(spec)
	default:
		capture, err = gocv.VideoCaptureFile(spec)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, spec, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: could not open %s", models.ErrSourceUnavailable, spec)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}

	return &CaptureSource{
		capture: capture,
		props: models.SourceProps{
			Kind:   kind,
			Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    fps,
		},
		readTimeout: readTimeout,
	}, nil
}

// Props returns the properties reported when the source was opened.
func (s *CaptureSource) Props() models.SourceProps {
	return s.props
}

// Next returns the next frame. File sources return models.ErrEndOfStream at EOF;
// device and network sources return a transient error on a failed or timed out read.
func (s *CaptureSource) Next(ctx context.Context) (models.Frame, error) {
	if s.closed {
		return models.Frame{}, fmt.Errorf("source closed")
	}

	if s.props.Kind == models.SourceFile {
		res := s.read()
		if errors.Is(res.err, errReadFailed) {
			return models.Frame{}, models.ErrEndOfStream
		}
		return res.frame, res.err
	}

	if s.pending == nil {
		ch := make(chan readResult, 1)
		s.pending = ch
		go func() { ch <- s.read() }()
	}

	var timeout <-chan time.Time
	if s.readTimeout > 0 {
		timer := time.NewTimer(s.readTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-s.pending:
		s.pending = nil
		return res.frame, res.err
	case <-timeout:
		return models.Frame{}, fmt.Errorf("read timed out after %v", s.readTimeout)
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	}
}

func (s *CaptureSource) read() readResult {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		return readResult{err: errReadFailed}
	}

	s.seq++
	frame, err := fromMat(mat, s.seq)
	if err != nil {
		return readResult{err: err}
	}
	frame.Captured = time.Now()
	return readResult{frame: frame}
}

// Close waits briefly for an in-flight read and releases the capture device.
// A read still blocked after the wait keeps the capture; it is released once
// that read returns.
func (s *CaptureSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.pending != nil {
		pending := s.pending
		s.pending = nil

		wait := s.readTimeout
		if wait <= 0 {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-pending:
		case <-timer.C:
			capture := s.capture
			go func() {
				<-pending
				capture.Close()
			}()
			return fmt.Errorf("read still in flight after %v, capture released later", wait)
		}
	}

	return s.capture.Close()
}
