// Package render draws the switcher strip. The frame model is computed by the
// switch controller; a Renderer turns it into pixels and a Presenter puts the
// pixels on screen.
package render

import (
	"image"
	"image/color"

	"github.com/1broseidon/alttab/internal/config"
	"github.com/1broseidon/alttab/internal/logger"
)

// Item is one window entry in a frame. Image nil means draw a placeholder.
type Item struct {
	Bounds   image.Rectangle
	Preview  image.Rectangle
	TitleBox image.Rectangle
	Image    *image.RGBA
	Title    string
	Selected bool
}

// Style holds the resolved colours and border width.
type Style struct {
	Background       color.Color
	ItemBackground   color.Color
	ActiveBackground color.Color
	ActiveBorder     color.Color
	Text             color.Color
	Placeholder      color.Color
	BorderWidth      int
}

// StyleFromConfig resolves the configured colours.
func StyleFromConfig(cfg *config.Config) Style {
	return Style{
		Background:       nrgba(cfg.Window.Background),
		ItemBackground:   nrgba(cfg.Item.Background),
		ActiveBackground: nrgba(cfg.Item.ActiveBackground),
		ActiveBorder:     nrgba(cfg.Item.ActiveBorder),
		Text:             nrgba(cfg.Item.TextColor),
		Placeholder:      nrgba(cfg.Item.Placeholder),
		BorderWidth:      cfg.Item.BorderWidth,
	}
}

// Config colours are straight alpha.
func nrgba(c config.Color) color.NRGBA {
	return color.NRGBA(c.MustRGBA())
}

// Frame is a complete description of what to show.
type Frame struct {
	Width  int
	Height int
	Items  []Item
	Style  Style
}

// Renderer draws frames.
type Renderer interface {
	Render(f Frame) error
	Hide() error
	Close() error
}

// Presenter shows a finished canvas. The canvas is reused by the next
// Render call, so Present must copy what it keeps.
type Presenter interface {
	Present(canvas *image.RGBA) error
	Hide() error
	Close() error
}

// New returns the renderer for backend. Only the software compositor is
// built in; accelerated backends fall back to it.
func New(backend config.RenderBackend, presenter Presenter) *Software {
	log := logger.WithComponent("render")
	switch backend {
	case config.RenderVulkan, config.RenderGl:
		log.Warn().Str("backend", string(backend)).Msg("Render backend unavailable, using Software")
	}
	if presenter == nil {
		presenter = NopPresenter{}
	}
	return NewSoftware(presenter)
}

// NopPresenter discards frames. Used when no display is available.
type NopPresenter struct{}

func (NopPresenter) Present(*image.RGBA) error { return nil }
func (NopPresenter) Hide() error               { return nil }
func (NopPresenter) Close() error              { return nil }
