package capture

import (
	"image"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// SnapshotSource provides read-only access to captured frames.
// LatestFrame returns the freshest snapshot while Running reports activity.
type SnapshotSource interface {
	LatestFrame() FrameSnapshot
	Running() bool
}

// ServiceContract exposes basic lifecycle control for capture services.
type ServiceContract interface {
	Start()
	Stop()
	Running() bool
}

// ServiceWithSelection extends ServiceContract with a setter for a selection provider.
type ServiceWithSelection interface {
	ServiceContract
	SetSelectionProvider(func() *image.Rectangle)
}

// Source is a lifecycle-managed calibration frame source.
type Source interface {
	ServiceContract
	calibration.FrameSource
}
