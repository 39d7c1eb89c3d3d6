package models

import "errors"

var (
	// ErrSourceUnavailable means the frame source could not be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceLost means too many consecutive reads failed.
	ErrSourceLost = errors.New("source lost")
	// ErrEndOfStream marks the end of a finite source.
	ErrEndOfStream = errors.New("end of stream")
	// ErrDetectionFailed marks a recoverable per-frame inference failure.
	ErrDetectionFailed = errors.New("detection failed")
	// ErrStoreWriteFailed marks a telemetry batch that could not be persisted.
	ErrStoreWriteFailed = errors.New("store write failed")
	// ErrOutputEncodeFailed means the annotated output could not be written.
	ErrOutputEncodeFailed = errors.New("output encode failed")
)
