package main

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/geometry"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func stateString(s calibration.State) string {
	switch s {
	case calibration.StateCalibrated:
		return color.New(color.Bold, color.FgGreen).Sprint(s.String())
	case calibration.StateCalibrating:
		return color.New(color.Bold, color.FgYellow).Sprint(s.String())
	default:
		return color.New(color.Bold, color.FgRed).Sprint(s.String())
	}
}

// parseQuad reads "x,y;x,y;x,y;x,y" in top-left, top-right, bottom-right,
// bottom-left order.
func parseQuad(s string) (geometry.Quad, error) {
	var q geometry.Quad
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != 4 {
		return q, errors.Errorf("quad %q: want 4 points, got %d", s, len(parts))
	}
	for i, p := range parts {
		xy := strings.Split(strings.TrimSpace(p), ",")
		if len(xy) != 2 {
			return q, errors.Errorf("quad point %q: want x,y", p)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return q, errors.Wrapf(err, "quad point %q", p)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return q, errors.Wrapf(err, "quad point %q", p)
		}
		q[i] = geometry.Pt(x, y)
	}
	return q, nil
}
