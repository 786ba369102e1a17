package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
)

// Rotation is a clockwise rotation in degrees, one of 0, 90, 180 or 270.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// NormalizeRotation maps any multiple of 90 degrees onto [0, 360).
func NormalizeRotation(degrees int) (Rotation, error) {
	if degrees%90 != 0 {
		return 0, errors.Newf("rotation %d is not a multiple of 90 degrees", degrees)
	}
	return Rotation(((degrees % 360) + 360) % 360), nil
}

// ComputeRotation returns the clockwise rotation that brings a sensor image
// upright for a display turned deviceRotation degrees.
func ComputeRotation(sensorOrientation, deviceRotation int, frontFacing bool) (Rotation, error) {
	if frontFacing {
		return NormalizeRotation(sensorOrientation + deviceRotation)
	}
	return NormalizeRotation(sensorOrientation - deviceRotation)
}

// SwapsDimensions reports whether rotating by r exchanges width and height.
func (r Rotation) SwapsDimensions() bool {
	return r == Rotate90 || r == Rotate270
}

// Orientation is the hint passed to the renderer along with a frame.
type Orientation struct {
	Rotation Rotation
	// Mirror flips the image horizontally at display time (front cameras).
	Mirror bool
}

// Orient rotates buf clockwise by r. A zero rotation returns buf itself; any
// other rotation allocates a new buffer carrying the same sequence number.
func Orient(buf *PixelBuffer, r Rotation) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, errors.Wrap(err, "orient")
	}
	switch r {
	case Rotate0:
		return buf, nil
	case Rotate90:
		// imaging rotates counter-clockwise
		return FromImage(imaging.Rotate270(buf.Image()), buf.Seq), nil
	case Rotate180:
		return FromImage(imaging.Rotate180(buf.Image()), buf.Seq), nil
	case Rotate270:
		return FromImage(imaging.Rotate90(buf.Image()), buf.Seq), nil
	default:
		return nil, errors.Newf("unsupported rotation %d", int(r))
	}
}
