package render

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "..."

// Software composes frames on the CPU.
type Software struct {
	presenter Presenter
	face      font.Face
	canvas    *image.RGBA
}

// NewSoftware returns a software renderer that hands frames to presenter.
func NewSoftware(presenter Presenter) *Software {
	return &Software{
		presenter: presenter,
		face:      basicfont.Face7x13,
	}
}

// Render draws f and presents it.
func (s *Software) Render(f Frame) error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	canvas := s.compose(f)
	if err := s.presenter.Present(canvas); err != nil {
		return fmt.Errorf("present frame: %w", err)
	}
	return nil
}

// Hide removes the overlay from screen.
func (s *Software) Hide() error {
	return s.presenter.Hide()
}

// Close releases the presenter.
func (s *Software) Close() error {
	return s.presenter.Close()
}

func (s *Software) compose(f Frame) *image.RGBA {
	bounds := image.Rect(0, 0, f.Width, f.Height)
	if s.canvas == nil || s.canvas.Bounds() != bounds {
		s.canvas = image.NewRGBA(bounds)
	}
	canvas := s.canvas
	fill(canvas, bounds, f.Style.Background, draw.Src)

	for _, item := range f.Items {
		bg := f.Style.ItemBackground
		if item.Selected {
			bg = f.Style.ActiveBackground
		}
		fill(canvas, item.Bounds, bg, draw.Over)

		if item.Image != nil {
			ib := item.Image.Bounds()
			dst := centered(item.Preview, ib.Dx(), ib.Dy())
			clip := dst.Intersect(item.Preview)
			draw.Draw(canvas, clip, item.Image, ib.Min.Add(clip.Min.Sub(dst.Min)), draw.Over)
		} else {
			fill(canvas, item.Preview, f.Style.Placeholder, draw.Over)
		}

		s.drawTitle(canvas, item.TitleBox, item.Title, f.Style.Text)

		if item.Selected && f.Style.BorderWidth > 0 {
			border(canvas, item.Bounds, f.Style.BorderWidth, f.Style.ActiveBorder)
		}
	}
	return canvas
}

func (s *Software) drawTitle(dst *image.RGBA, box image.Rectangle, title string, c color.Color) {
	if box.Empty() || title == "" {
		return
	}
	d := s.drawer(dst, c)
	title = truncate(d, title, box.Dx())
	width := d.MeasureString(title).Ceil()

	metrics := s.face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	x := box.Min.X + (box.Dx()-width)/2
	y := box.Min.Y + (box.Dy()-textHeight)/2 + metrics.Ascent.Ceil()
	d.Dot = fixed.P(x, y)
	d.DrawString(title)
}

func (s *Software) drawer(dst draw.Image, c color.Color) *font.Drawer {
	return &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: s.face,
	}
}

// truncate shortens s with an ellipsis until it fits in width pixels.
func truncate(d *font.Drawer, s string, width int) string {
	if d.MeasureString(s).Ceil() <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if d.MeasureString(candidate).Ceil() <= width {
			return candidate
		}
	}
	return ""
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color, op draw.Op) {
	if c == nil {
		return
	}
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, op)
}

func border(dst *image.RGBA, r image.Rectangle, width int, c color.Color) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c, draw.Src)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c, draw.Src)
	fill(dst, image.Rect(r.Min.X, r.Min.Y+width, r.Min.X+width, r.Max.Y-width), c, draw.Src)
	fill(dst, image.Rect(r.Max.X-width, r.Min.Y+width, r.Max.X, r.Max.Y-width), c, draw.Src)
}

func centered(box image.Rectangle, w, h int) image.Rectangle {
	x := box.Min.X + (box.Dx()-w)/2
	y := box.Min.Y + (box.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}
