// Package frame holds the data that moves through the beautification pipeline:
// pixel buffers, facial landmarks and camera orientation.
package frame

import (
	"image"

	"github.com/cockroachdb/errors"
)

// BytesPerPixel is the size of one RGBA pixel.
const BytesPerPixel = 4

// PixelFormat identifies the byte layout of a PixelBuffer.
type PixelFormat int

const (
	// FormatRGBA is 8-bit R, G, B, A interleaved, non-premultiplied.
	FormatRGBA PixelFormat = iota
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// PixelBuffer is one camera frame. A buffer is exclusively owned by the stage
// holding it and must not be modified once it has been handed to the next
// stage or published to a sink.
type PixelBuffer struct {
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
	Seq    uint64
}

// NewPixelBuffer wraps data as an RGBA buffer after checking its length.
func NewPixelBuffer(data []byte, width, height int, seq uint64) (*PixelBuffer, error) {
	buf := &PixelBuffer{Data: data, Width: width, Height: height, Format: FormatRGBA, Seq: seq}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Filled returns a width x height buffer with every pixel set to c.
func Filled(width, height int, c [4]byte, seq uint64) *PixelBuffer {
	data := make([]byte, width*height*BytesPerPixel)
	for i := 0; i < len(data); i += BytesPerPixel {
		copy(data[i:i+BytesPerPixel], c[:])
	}
	return &PixelBuffer{Data: data, Width: width, Height: height, Format: FormatRGBA, Seq: seq}
}

// Validate checks that the buffer shape is self-consistent.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return errors.New("nil pixel buffer")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return errors.Newf("non-positive dimensions %dx%d", b.Width, b.Height)
	}
	if b.Format != FormatRGBA {
		return errors.Newf("unsupported pixel format %s", b.Format)
	}
	if want := b.Width * b.Height * BytesPerPixel; len(b.Data) != want {
		return errors.Newf("buffer length %d does not match %dx%d rgba (%d)", len(b.Data), b.Width, b.Height, want)
	}
	return nil
}

// Stride is the number of bytes per row.
func (b *PixelBuffer) Stride() int {
	return b.Width * BytesPerPixel
}

// Image returns an image view sharing the buffer's memory.
func (b *PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Data,
		Stride: b.Stride(),
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Clone returns a deep copy of the buffer.
func (b *PixelBuffer) Clone() *PixelBuffer {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &PixelBuffer{Data: data, Width: b.Width, Height: b.Height, Format: b.Format, Seq: b.Seq}
}

// FromImage builds a buffer from img. Pixel memory is reused when img is a
// tightly packed NRGBA image anchored at the origin, copied otherwise.
func FromImage(img *image.NRGBA, seq uint64) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if bounds.Min == (image.Point{}) && img.Stride == w*BytesPerPixel && len(img.Pix) == w*h*BytesPerPixel {
		return &PixelBuffer{Data: img.Pix, Width: w, Height: h, Format: FormatRGBA, Seq: seq}
	}
	data := make([]byte, w*h*BytesPerPixel)
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		copy(data[y*w*BytesPerPixel:(y+1)*w*BytesPerPixel], src[:w*BytesPerPixel])
	}
	return &PixelBuffer{Data: data, Width: w, Height: h, Format: FormatRGBA, Seq: seq}
}
