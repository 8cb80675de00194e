package lcd

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

var (
	black = color.RGBA{0, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

// GraphicConfig configures a GraphicSurface. Zero colors default to white
// text on black. Zero Ascent and Descent are derived from the font.
type GraphicConfig struct {
	Font       tinyfont.Fonter
	Foreground color.RGBA
	Background color.RGBA
	// Ascent and Descent are the pixel extents of a text line above and
	// below the baseline given as y to DrawText.
	Ascent  int16
	Descent int16
}

// GraphicSurface draws text on a pixel display with tinyfont. x and y are
// pixel coordinates of the baseline start.
//
// tinyfont only sets glyph pixels, so each draw first fills the text box
// with the background. That makes a run of spaces erase what was under it.
type GraphicSurface struct {
	display drivers.Displayer
	cfg     GraphicConfig
}

// NewGraphicSurface creates a surface on display.
func NewGraphicSurface(display drivers.Displayer, cfg GraphicConfig) *GraphicSurface {
	if cfg.Foreground == (color.RGBA{}) {
		cfg.Foreground = white
	}
	if cfg.Background == (color.RGBA{}) {
		cfg.Background = black
	}
	yAdvance := int16(cfg.Font.GetYAdvance())
	if cfg.Ascent == 0 {
		cfg.Ascent = yAdvance
	}
	if cfg.Descent == 0 {
		cfg.Descent = yAdvance / 2
	}
	return &GraphicSurface{display: display, cfg: cfg}
}

// DrawText paints text opaquely and flushes the display.
func (g *GraphicSurface) DrawText(text []byte, x, y int16, align Align) error {
	_, h := g.display.Size()
	if y < 0 || y >= h {
		return ErrOffScreen
	}
	str := string(text)
	_, width := tinyfont.LineWidth(g.cfg.Font, str)
	x = start(x, int16(width), align)

	g.fill(x, y-g.cfg.Ascent, int16(width), g.cfg.Ascent+g.cfg.Descent)
	tinyfont.WriteLine(g.display, g.cfg.Font, x, y, str, g.cfg.Foreground)
	return g.display.Display()
}

func (g *GraphicSurface) fill(x, y, w, h int16) {
	sw, sh := g.display.Size()
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, sw), min(y+h, sh)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			g.display.SetPixel(px, py, g.cfg.Background)
		}
	}
}
