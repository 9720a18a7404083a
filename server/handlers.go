package server

import (
	"errors"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/geometry"
	"github.com/soocke/board-calibrator-go/images"
)

type stateResponse struct {
	Session         string           `json:"session,omitempty"`
	State           string           `json:"state"`
	Running         bool             `json:"running"`
	Recognized      bool             `json:"recognized"`
	FullyRecognized bool             `json:"fully_recognized"`
	Bounds          *image.Rectangle `json:"bounds,omitempty"`
	ImageSize       *geometry.Size   `json:"image_size,omitempty"`
	Sequence        uint64           `json:"sequence"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
	Stats           statsResponse    `json:"stats"`
}

type statsResponse struct {
	Iterations  uint64 `json:"iterations"`
	Skipped     uint64 `json:"skipped"`
	Simulated   uint64 `json:"simulated"`
	Misses      uint64 `json:"misses"`
	Degenerate  uint64 `json:"degenerate"`
	Accepted    uint64 `json:"accepted"`
	Demotions   uint64 `json:"demotions"`
	Resets      uint64 `json:"resets"`
	AvgRectify  string `json:"avg_rectify"`
	LockedFor   string `json:"locked_for"`
	LockedTotal string `json:"locked_total"`
}

type pointsResponse struct {
	Points       geometry.Quad   `json:"points"`
	ScreenPoints geometry.Quad   `json:"screen_points"`
	FrameBounds  image.Rectangle `json:"frame_bounds"`
	Sequence     uint64          `json:"sequence"`
}

func (s *Server) getState(c *gin.Context) {
	snap := s.ctrl.Snapshot()
	st := s.ctrl.Stats()
	resp := stateResponse{
		Session:         snap.Session,
		State:           snap.State.String(),
		Running:         s.ctrl.Running(),
		Recognized:      snap.Recognized,
		FullyRecognized: snap.State == calibration.StateCalibrated,
		Sequence:        snap.Sequence,
		Stats: statsResponse{
			Iterations:  st.Iterations,
			Skipped:     st.Skipped,
			Simulated:   st.Simulated,
			Misses:      st.Misses,
			Degenerate:  st.Degenerate,
			Accepted:    st.Accepted,
			Demotions:   st.Demotions,
			Resets:      st.Resets,
			AvgRectify:  st.AvgRectify.String(),
			LockedFor:   st.LockedFor.Round(time.Millisecond).String(),
			LockedTotal: st.LockedTotal.Round(time.Millisecond).String(),
		},
	}
	if snap.HasBounds {
		resp.Bounds = &snap.Bounds
	}
	if snap.HasBoard {
		resp.ImageSize = &snap.ImageSize
	}
	if !snap.UpdatedAt.IsZero() {
		resp.UpdatedAt = &snap.UpdatedAt
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *Server) getPoints(c *gin.Context) {
	var resp pointsResponse
	err := s.ctrl.WithBoardImage(func(snap calibration.Snapshot) {
		resp = pointsResponse{
			Points:       snap.Points,
			ScreenPoints: snap.ScreenPoints,
			FrameBounds:  snap.FrameBounds,
			Sequence:     snap.Sequence,
		}
	})
	if err != nil {
		abortNotCalibrated(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, resp)
}

// getBoard serves the rectified board as PNG. Optional query parameters:
// max=WxH scales down to fit, cx/cy/size crops a square around a board point.
func (s *Server) getBoard(c *gin.Context) {
	var maxW, maxH int
	if v := c.Query("max"); v != "" {
		w, h, err := images.ParseSize(v)
		if err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		maxW, maxH = w, h
	}
	crop, center, size, err := cropParams(c)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	var img image.Image
	var seq uint64
	err = s.ctrl.WithBoardImage(func(snap calibration.Snapshot) {
		img = imaging.Clone(snap.Image)
		seq = snap.Sequence
	})
	if err != nil {
		abortNotCalibrated(c, err)
		return
	}
	if crop {
		if img, _, err = images.CropCentered(img, center, size); err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	img = images.ScaleToFit(img, maxW, maxH)
	data, err := images.EncodePNG(img)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Header("X-Board-Sequence", strconv.FormatUint(seq, 10))
	c.Data(http.StatusOK, "image/png", data)
}

func cropParams(c *gin.Context) (bool, image.Point, int, error) {
	cx, cy, sz := c.Query("cx"), c.Query("cy"), c.Query("size")
	if cx == "" && cy == "" && sz == "" {
		return false, image.Point{}, 0, nil
	}
	x, errX := strconv.Atoi(cx)
	y, errY := strconv.Atoi(cy)
	size, errS := strconv.Atoi(sz)
	if err := errors.Join(errX, errY, errS); err != nil || size <= 0 {
		return false, image.Point{}, 0, errors.New("crop needs integer cx, cy and a positive size")
	}
	return true, image.Pt(x, y), size, nil
}

func (s *Server) postStart(c *gin.Context) {
	s.ctrl.Start()
	c.IndentedJSON(http.StatusOK, s.ctrl.State().String())
}

func (s *Server) postStop(c *gin.Context) {
	s.ctrl.Stop()
	c.IndentedJSON(http.StatusOK, s.ctrl.State().String())
}

func abortNotCalibrated(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, calibration.ErrNotYetCalibrated) {
		status = http.StatusConflict
	}
	c.IndentedJSON(status, err.Error())
	_ = c.AbortWithError(status, err)
}
