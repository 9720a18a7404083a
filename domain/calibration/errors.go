package calibration

import "errors"

var (
	// ErrSourceUnavailable is returned by frame sources with nothing to offer.
	ErrSourceUnavailable = errors.New("frame source unavailable")
	// ErrRecognitionMiss marks an iteration where the board was not found.
	ErrRecognitionMiss = errors.New("board not recognized")
	// ErrNotYetCalibrated is returned by artifact accessors before a frame
	// has been accepted in the current session.
	ErrNotYetCalibrated = errors.New("board not yet calibrated")
)
