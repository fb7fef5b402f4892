package switcher

import (
	"image"
	"unicode"
	"unicode/utf8"

	"github.com/1broseidon/alttab/internal/capture"
	"github.com/1broseidon/alttab/internal/config"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/render"
)

// LayoutOptions are the geometry and style settings of the strip.
type LayoutOptions struct {
	WindowMaxWidth  int
	WindowPadding   int
	Gap             int
	ItemPadding     int
	TitleHeight     int
	PreviewHeight   int
	PreviewMinWidth int
	PreviewMaxWidth int
	MaxItems        int
	Style           render.Style
}

// LayoutFromConfig extracts the layout settings from cfg.
func LayoutFromConfig(cfg *config.Config) LayoutOptions {
	return LayoutOptions{
		WindowMaxWidth:  cfg.Window.MaxWidth,
		WindowPadding:   cfg.Window.Padding,
		Gap:             cfg.Window.Gap,
		ItemPadding:     cfg.Item.Padding,
		TitleHeight:     cfg.Item.TitleHeight,
		PreviewHeight:   cfg.Preview.Height,
		PreviewMinWidth: cfg.Preview.MinWidth,
		PreviewMaxWidth: cfg.Preview.MaxWidth,
		MaxItems:        cfg.Layout.MaxItems,
		Style:           render.StyleFromConfig(cfg),
	}
}

type cell struct {
	window   platform.Window
	image    *image.RGBA
	selected bool
}

func (o LayoutOptions) previewWidth(c cell) int {
	if c.image != nil {
		return c.image.Bounds().Dx()
	}
	w, _ := capture.PreviewSize(c.window.Bounds.Width, c.window.Bounds.Height,
		o.PreviewHeight, o.PreviewMinWidth, o.PreviewMaxWidth)
	return w
}

func (o LayoutOptions) itemHeight() int {
	return o.TitleHeight + o.PreviewHeight + 2*o.ItemPadding
}

// build lays cells out in rows that wrap at the maximum window width. Each
// row is centred horizontally.
func (o LayoutOptions) build(cells []cell) render.Frame {
	available := o.WindowMaxWidth - 2*o.WindowPadding

	type row struct {
		widths []int
		width  int
	}
	var rows []row
	longest := 0
	previews := make([]int, len(cells))

	for i, c := range cells {
		previews[i] = o.previewWidth(c)
		itemWidth := previews[i] + 2*o.ItemPadding
		if n := len(rows); n > 0 && rows[n-1].width+o.Gap+itemWidth <= available {
			rows[n-1].widths = append(rows[n-1].widths, itemWidth)
			rows[n-1].width += o.Gap + itemWidth
		} else {
			rows = append(rows, row{widths: []int{itemWidth}, width: itemWidth})
		}
		if w := rows[len(rows)-1].width; w > longest {
			longest = w
		}
	}

	itemHeight := o.itemHeight()
	frame := render.Frame{
		Width:  longest + 2*o.WindowPadding,
		Height: 2 * o.WindowPadding,
		Style:  o.Style,
		Items:  make([]render.Item, 0, len(cells)),
	}
	if len(rows) > 0 {
		frame.Height += len(rows)*itemHeight + (len(rows)-1)*o.Gap
	}

	i := 0
	y := o.WindowPadding
	for _, r := range rows {
		x := o.WindowPadding + (longest-r.width)/2
		for _, itemWidth := range r.widths {
			c := cells[i]
			inner := image.Rect(x+o.ItemPadding, y+o.ItemPadding, x+itemWidth-o.ItemPadding, y+itemHeight-o.ItemPadding)
			frame.Items = append(frame.Items, render.Item{
				Bounds:   image.Rect(x, y, x+itemWidth, y+itemHeight),
				TitleBox: image.Rect(inner.Min.X, inner.Min.Y, inner.Max.X, inner.Min.Y+o.TitleHeight),
				Preview: image.Rect(inner.Min.X, inner.Min.Y+o.TitleHeight,
					inner.Min.X+previews[i], inner.Min.Y+o.TitleHeight+o.PreviewHeight),
				Image:    c.image,
				Title:    FormatTitle(c.window),
				Selected: c.selected,
			})
			x += itemWidth + o.Gap
			i++
		}
		y += itemHeight + o.Gap
	}
	return frame
}

// FormatTitle renders "<title> | <AppId>" with the app id capitalised, or the
// bare title when there is no app id.
func FormatTitle(w platform.Window) string {
	if w.AppID == "" {
		if w.Title == "" {
			return "Untitled Window"
		}
		return w.Title
	}
	r, size := utf8.DecodeRuneInString(w.AppID)
	return w.Title + " | " + string(unicode.ToUpper(r)) + w.AppID[size:]
}
