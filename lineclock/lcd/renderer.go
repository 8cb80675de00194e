// Package lcd renders completed serial lines on a display.
//
// Example usage:
//
//	mb := line.NewMailbox(line.DefaultDepth, line.DefaultCapacity)
//	surface := lcd.NewShared(lcd.NewCharSurface(&dev, 20, 4))
//	r := lcd.NewRenderer(surface, mb, lcd.RendererConfig{Y: 2}, logger)
//	go r.Run(ctx)
//
// Lines are never cleared with a full-screen wipe. Each new line is drawn
// over a run of spaces wide enough to cover the line before it, so other
// content on the display (the clock) is left alone.
package lcd

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/harveysanders/picoterm/lineclock/line"
)

// DefaultMargin is the number of extra spaces painted past the previous
// line. It is a heuristic: it must exceed the largest shrink in drawn width
// between two consecutive lines that is not already accounted for by the
// previous line length, e.g. proportional glyphs narrower than a space.
const DefaultMargin = 5

// RendererConfig places the line on the surface.
type RendererConfig struct {
	X, Y  int16
	Align Align
	// Margin is the over-paint past the previous line length.
	Margin int
	// Capacity is the line buffer capacity; it sizes the erase buffer.
	Capacity int
}

// Renderer draws each completed line from a mailbox.
type Renderer struct {
	surface *Shared
	mailbox *line.Mailbox
	cfg     RendererConfig
	logger  *slog.Logger
	forward chan<- line.Record

	// scratch holds only spaces; scratch[:prevLen+margin] is the erase run.
	scratch  []byte
	prevLen  int
	rendered atomic.Uint32
}

// NewRenderer creates a renderer for lines posted to mb.
func NewRenderer(surface *Shared, mb *line.Mailbox, cfg RendererConfig, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Margin < 1 {
		cfg.Margin = DefaultMargin
	}
	if cfg.Capacity < 2 {
		cfg.Capacity = line.DefaultCapacity
	}
	r := &Renderer{
		surface: surface,
		mailbox: mb,
		cfg:     cfg,
		logger:  logger,
	}
	r.scratch = spaces(cfg.Capacity - 1 + cfg.Margin)
	return r
}

// Forward sends a copy of every rendered line to ch. Sends never block;
// a line is dropped when ch is full. Forward must be called before Run.
func (r *Renderer) Forward(ch chan<- line.Record) {
	r.forward = ch
}

// Run renders lines until ctx is done. Run should be called in a separate
// goroutine.
func (r *Renderer) Run(ctx context.Context) error {
	for {
		buf, err := r.mailbox.Wait(ctx)
		if err != nil {
			return err
		}
		r.render(buf)
		r.mailbox.Release(buf)
	}
}

// Rendered returns the number of lines drawn so far.
func (r *Renderer) Rendered() uint32 {
	return r.rendered.Load()
}

// EraseWidth returns the number of spaces the next render paints.
func (r *Renderer) EraseWidth() int {
	return r.prevLen + r.cfg.Margin
}

// render erases the previous line and draws buf in one exclusive section.
func (r *Renderer) render(buf *line.Buffer) {
	n := r.EraseWidth()
	if n > len(r.scratch) {
		r.scratch = spaces(n)
	}
	erase := r.scratch[:n]

	err := r.surface.Do(func(s Surface) error {
		if err := s.DrawText(erase, r.cfg.X, r.cfg.Y, r.cfg.Align); err != nil {
			return err
		}
		return s.DrawText(buf.Bytes(), r.cfg.X, r.cfg.Y, r.cfg.Align)
	})
	if err != nil {
		r.logger.Error("lcd:draw", slog.String("err", err.Error()))
	}
	r.prevLen = buf.Len()
	seq := r.rendered.Add(1)
	if buf.Truncated {
		r.logger.Warn("lcd:truncated-line", slog.Int("len", buf.Len()))
	}

	if r.forward == nil {
		return
	}
	select {
	case r.forward <- buf.Record(seq):
	default:
		r.logger.Debug("lcd:forward-dropped", slog.Uint64("seq", uint64(seq)))
	}
}

func spaces(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return b
}
