package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/1broseidon/alttab/internal/protocol"
	"golang.org/x/image/draw"
)

// decodeFrame converts a raw capture buffer into an RGBA image.
func decodeFrame(f protocol.Frame) (*image.RGBA, error) {
	if f.Format == protocol.FormatPNG {
		src, err := png.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		if rgba, ok := src.(*image.RGBA); ok {
			return rgba, nil
		}
		b := src.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	}

	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("empty frame %dx%d", f.Width, f.Height)
	}
	stride := f.Stride
	if stride == 0 {
		stride = f.Width * 4
	}
	if stride < f.Width*4 {
		return nil, fmt.Errorf("stride %d too small for width %d", stride, f.Width)
	}
	if need := stride*(f.Height-1) + f.Width*4; len(f.Data) < need {
		return nil, fmt.Errorf("short frame: have %d bytes, need %d", len(f.Data), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Data[y*stride : y*stride+f.Width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		switch f.Format {
		case protocol.FormatRGBA:
			copy(dst, src)
		case protocol.FormatBGRX, protocol.FormatBGRA:
			for i := 0; i < len(src); i += 4 {
				dst[i] = src[i+2]
				dst[i+1] = src[i+1]
				dst[i+2] = src[i]
				if f.Format == protocol.FormatBGRA {
					dst[i+3] = src[i+3]
				} else {
					dst[i+3] = 0xff
				}
			}
		default:
			return nil, fmt.Errorf("unsupported pixel format %d", f.Format)
		}
	}
	return img, nil
}

// PreviewSize returns the thumbnail size for a source of w x h: fixed height,
// width following the aspect ratio within [minWidth, maxWidth].
func PreviewSize(w, h, height, minWidth, maxWidth int) (int, int) {
	if w <= 0 || h <= 0 {
		return minWidth, height
	}
	width := w * height / h
	if width < minWidth {
		width = minWidth
	}
	if width > maxWidth {
		width = maxWidth
	}
	return width, height
}

func scale(src *image.RGBA, width, height int) *image.RGBA {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
