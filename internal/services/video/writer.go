package video

import (
	"fmt"
	"os"
	"path/filepath"

	"animalcensus/internal/models"

	"gocv.io/x/gocv"
)

// FileWriter re-encodes annotated frames into a video file.
type FileWriter struct {
	writer *gocv.VideoWriter
	path   string
	width  int
	height int
}

// OpenWriter creates the output file sized to the source.
func OpenWriter(path string, props models.SourceProps) (*FileWriter, error) {
	if props.Width <= 0 || props.Height <= 0 {
		return nil, fmt.Errorf("%w: unknown frame size %dx%d", models.ErrOutputEncodeFailed, props.Width, props.Height)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
	}

	fps := props.FPS
	if fps <= 0 {
		fps = defaultFPS
	}

	writer, err := gocv.VideoWriterFile(path, "mp4v", fps, props.Width, props.Height, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("%w: could not open %s", models.ErrOutputEncodeFailed, path)
	}

	return &FileWriter{writer: writer, path: path, width: props.Width, height: props.Height}, nil
}

// Write appends one frame. Size mismatches and encoder errors wrap models.ErrOutputEncodeFailed.
func (w *FileWriter) Write(frame models.Frame) error {
	if frame.Width != w.width || frame.Height != w.height {
		return fmt.Errorf("%w: frame %d is %dx%d, writer expects %dx%d", models.ErrOutputEncodeFailed,
			frame.Seq, frame.Width, frame.Height, w.width, w.height)
	}

	mat, err := ToMat(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
	}
	defer mat.Close()

	if err := w.writer.Write(mat); err != nil {
		return fmt.Errorf("%w: %v", models.ErrOutputEncodeFailed, err)
	}
	return nil
}

// Path returns the output file path.
func (w *FileWriter) Path() string {
	return w.path
}

func (w *FileWriter) Close() error {
	return w.writer.Close()
}
