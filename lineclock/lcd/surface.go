package lcd

import (
	"errors"
	"sync"
)

// ErrOffScreen is returned when text is drawn on a row the display does not have.
var ErrOffScreen = errors.New("lcd: position off screen")

// Align selects how text is placed relative to its x coordinate.
type Align uint8

const (
	AlignLeft Align = iota
	AlignCenter
)

// Surface draws text at a position. Drawing is opaque: whatever was under
// the drawn text, spaces included, is replaced.
type Surface interface {
	DrawText(text []byte, x, y int16, align Align) error
}

// Shared serializes access to a Surface shared by several goroutines.
type Shared struct {
	mu      sync.Mutex
	surface Surface
}

// NewShared wraps s.
func NewShared(s Surface) *Shared {
	return &Shared{surface: s}
}

// DrawText draws under the lock.
func (s *Shared) DrawText(text []byte, x, y int16, align Align) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.DrawText(text, x, y, align)
}

// Do runs fn with exclusive access to the surface, so a sequence of draws is
// not interleaved with other drawers.
func (s *Shared) Do(fn func(Surface) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.surface)
}

// start returns the left edge of text of width w placed at x.
func start(x, w int16, align Align) int16 {
	if align == AlignCenter {
		return x - w/2
	}
	return x
}
