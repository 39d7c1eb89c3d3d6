package models

import "time"

// BytesPerPixel is the channel count of Frame.Data (packed BGR).
const BytesPerPixel = 3

// Frame is one captured image.
type Frame struct {
	Seq      uint64
	Captured time.Time
	Width    int
	Height   int
	Data     []byte
}

// Valid reports whether Data matches the frame dimensions.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*BytesPerPixel
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return c
}

// SourceKind identifies the kind of frame source.
type SourceKind int

const (
	SourceDevice SourceKind = iota
	SourceFile
	SourceNetwork
)

func (k SourceKind) String() string {
	switch k {
	case SourceDevice:
		return "device"
	case SourceFile:
		return "file"
	case SourceNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// SourceProps describes an opened source.
type SourceProps struct {
	Kind   SourceKind
	Width  int
	Height int
	FPS    float64
}

// Overlay is the statistics panel drawn on annotated frames.
type Overlay struct {
	Current     FrameCount
	MaxPerFrame map[string]int
	RollingFPS  float64
	FrameSeq    uint64
	Detections  int
}
