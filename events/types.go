package events

import "encoding/json"

// Event name constants
const (
	BoardUpdated     = "board.updated"
	CalibrationState = "calibration.state"
)

// Event is a named JSON payload fanned out to subscribers (and SSE clients).
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// BoardUpdatedEvent is the typed payload for board.updated.
type BoardUpdatedEvent struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Count  int64 `json:"count"`
	Ts     int64 `json:"ts"`
}

// CalibrationStateEvent is the typed payload for calibration.state.
type CalibrationStateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	Ts   int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// If Data is empty, it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
