package capture

import (
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// Grab returns a screen capture of the primary monitor.
func Grab() (*image.RGBA, error) {
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}

// GrabSelection captures sel clipped to the screen.
func GrabSelection(sel image.Rectangle) (*image.RGBA, error) {
	if sel.Empty() {
		return nil, fmt.Errorf("capture selection: empty rect")
	}
	if screen, err := screenshot.ScreenRect(); err == nil {
		r := sel.Intersect(screen)
		if r.Empty() {
			return nil, fmt.Errorf("capture selection: %v outside screen %v", sel, screen)
		}
		sel = r
	}
	img, err := screenshot.CaptureRect(sel)
	if err != nil {
		return nil, fmt.Errorf("capture selection %v: %w", sel, err)
	}
	return img, nil
}
