package video

import (
	"fmt"

	"animalcensus/internal/models"

	"gocv.io/x/gocv"
)

// ToMat returns a BGR Mat owning a copy of the frame data.
func ToMat(frame models.Frame) (gocv.Mat, error) {
	if !frame.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %d: %dx%d with %d bytes",
			frame.Seq, frame.Width, frame.Height, len(frame.Data))
	}

	header, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap frame %d: %w", frame.Seq, err)
	}
	defer header.Close()

	return header.Clone(), nil
}

// fromMat copies a Mat into a frame, converting to 3-channel BGR if needed.
func fromMat(mat gocv.Mat, seq uint64) (models.Frame, error) {
	src := mat
	switch mat.Channels() {
	case 3:
	case 1, 4:
		converted := gocv.NewMat()
		defer converted.Close()

		code := gocv.ColorGrayToBGR
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		if err := gocv.CvtColor(mat, &converted, code); err != nil {
			return models.Frame{}, fmt.Errorf("failed to convert frame %d: %w", seq, err)
		}
		src = converted
	default:
		return models.Frame{}, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}

	return models.Frame{
		Seq:    seq,
		Width:  src.Cols(),
		Height: src.Rows(),
		Data:   src.ToBytes(),
	}, nil
}

// EncodeJPEG encodes a frame for viewers and snapshots.
func EncodeJPEG(frame models.Frame) ([]byte, error) {
	mat, err := ToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", frame.Seq, err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
