package frame

// RawFrame is a captured buffer as delivered by the camera, before it has
// been rotated upright.
type RawFrame struct {
	Buffer *PixelBuffer
	// SensorOrientation is the clockwise angle, in degrees, the sensor image
	// must be rotated to appear upright with the device in its natural
	// orientation.
	SensorOrientation int
	FrontFacing       bool
}
