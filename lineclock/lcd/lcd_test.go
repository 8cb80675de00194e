package lcd

import (
	"bytes"
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/harveysanders/picoterm/lineclock/line"
)

// gridDevice is a character LCD in memory.
type gridDevice struct {
	lock  sync.Mutex
	cells [][]byte
	x, y  int
	draws []string
}

func newGridDevice(columns, rows int) *gridDevice {
	d := &gridDevice{cells: make([][]byte, rows)}
	for i := range d.cells {
		d.cells[i] = bytes.Repeat([]byte{' '}, columns)
	}
	return d
}

func (d *gridDevice) SetCursor(x, y uint8) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.x, d.y = int(x), int(y)
}

func (d *gridDevice) Print(data []byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.draws = append(d.draws, string(data))
	row := d.cells[d.y]
	for _, c := range data {
		if d.x >= len(row) {
			break
		}
		row[d.x] = c
		d.x++
	}
}

func (d *gridDevice) row(y int) string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return string(d.cells[y])
}

func (d *gridDevice) drawn() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]string(nil), d.draws...)
}

func TestCharSurfaceClips(t *testing.T) {
	dev := newGridDevice(8, 2)
	s := NewCharSurface(dev, 8, 2)

	require.NoError(t, s.DrawText([]byte("0123456789"), 2, 1, AlignLeft))
	require.Equal(t, "  012345", dev.row(1))

	require.NoError(t, s.DrawText([]byte("abcd"), -2, 0, AlignLeft))
	require.Equal(t, "cd      ", dev.row(0))

	require.NoError(t, s.DrawText([]byte("xy"), 9, 0, AlignLeft))
	require.ErrorIs(t, s.DrawText([]byte("x"), 0, 2, AlignLeft), ErrOffScreen)
}

func TestCharSurfaceCenter(t *testing.T) {
	dev := newGridDevice(10, 1)
	s := NewCharSurface(dev, 10, 1)
	require.NoError(t, s.DrawText([]byte("abcd"), 5, 0, AlignCenter))
	require.Equal(t, "   abcd   ", dev.row(0))
}

func TestCharSurfaceClipsVeryLongText(t *testing.T) {
	dev := newGridDevice(20, 1)
	s := NewCharSurface(dev, 20, 1)

	long := bytes.Repeat([]byte("x"), 33000)
	require.NoError(t, s.DrawText(long, 0, 0, AlignLeft))
	require.Equal(t, []string{string(long[:20])}, dev.drawn())

	require.NoError(t, s.DrawText(long, 10, 0, AlignCenter))
	require.Len(t, dev.drawn()[1], 20)
}

func TestSharedDoIsExclusive(t *testing.T) {
	dev := newGridDevice(4, 1)
	shared := NewShared(NewCharSurface(dev, 4, 1))

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = shared.Do(func(s Surface) error {
			close(inside)
			<-release
			return s.DrawText([]byte("aa"), 0, 0, AlignLeft)
		})
	}()
	<-inside

	done := make(chan struct{})
	go func() {
		_ = shared.DrawText([]byte("bb"), 0, 0, AlignLeft)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("draw ran inside another drawer's section")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	require.Equal(t, []string{"aa", "bb"}, dev.drawn())
}

type renderFixture struct {
	dev      *gridDevice
	mb       *line.Mailbox
	renderer *Renderer
}

func newRenderFixture(capacity, columns int) *renderFixture {
	dev := newGridDevice(columns, 4)
	mb := line.NewMailbox(2, capacity)
	shared := NewShared(NewCharSurface(dev, int16(columns), 4))
	r := NewRenderer(shared, mb, RendererConfig{X: 0, Y: 2, Margin: 5, Capacity: capacity}, nil)
	return &renderFixture{dev: dev, mb: mb, renderer: r}
}

// renderOne posts s and renders it synchronously.
func (f *renderFixture) renderOne(t *testing.T, s string) {
	t.Helper()
	b, err := f.mb.Acquire(context.Background())
	require.NoError(t, err)
	for i := 0; i < len(s); i++ {
		require.NoError(t, b.Append(s[i]))
	}
	f.mb.Post(b)
	got, err := f.mb.Wait(context.Background())
	require.NoError(t, err)
	f.renderer.render(got)
	f.mb.Release(got)
}

func TestRendererErasesPreviousLine(t *testing.T) {
	f := newRenderFixture(100, 40)

	f.renderOne(t, "hello world")
	require.Equal(t, "hello world", trimRight(f.dev.row(2)))

	f.renderOne(t, "hi")
	require.Equal(t, "hi", trimRight(f.dev.row(2)), "no remnant of the longer line")

	draws := f.dev.drawn()
	require.Len(t, draws, 4)
	require.Equal(t, "     ", draws[0], "first erase is the bare margin")
	require.Equal(t, "hello world", draws[1])
	require.Equal(t, len("hello world")+5, len(draws[2]))
	require.Equal(t, "hi", draws[3])
}

func TestRendererEraseCoverageAtCapacity(t *testing.T) {
	const capacity = 100
	f := newRenderFixture(capacity, 120)
	long := string(bytes.Repeat([]byte{'#'}, capacity-1))

	f.renderOne(t, long)
	require.Equal(t, capacity-1+5, f.renderer.EraseWidth())
	f.renderOne(t, long)
	require.Equal(t, long, trimRight(f.dev.row(2)))

	f.renderOne(t, "x")
	require.Equal(t, "x", trimRight(f.dev.row(2)))
	draws := f.dev.drawn()
	require.GreaterOrEqual(t, len(draws[4]), capacity-1+5)
	require.Equal(t, 1+5, f.renderer.EraseWidth())
}

func TestRendererResetsBuffer(t *testing.T) {
	f := newRenderFixture(16, 20)
	f.renderOne(t, "abc")

	for i := 0; i < f.mb.Depth(); i++ {
		b, err := f.mb.Acquire(context.Background())
		require.NoError(t, err)
		require.Zero(t, b.Len())
		require.NoError(t, b.Append('z'))
		require.Equal(t, "z", b.String())
	}
}

func TestRendererRunForwardsRecords(t *testing.T) {
	f := newRenderFixture(16, 20)
	records := make(chan line.Record, 4)
	f.renderer.Forward(records)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.renderer.Run(ctx) }()

	for _, s := range []string{"one", "two"} {
		b, err := f.mb.Acquire(ctx)
		require.NoError(t, err)
		for i := 0; i < len(s); i++ {
			require.NoError(t, b.Append(s[i]))
		}
		b.Truncated = s == "two"
		f.mb.Post(b)
	}

	for i, want := range []string{"one", "two"} {
		select {
		case rec := <-records:
			require.Equal(t, uint32(i+1), rec.Seq)
			require.Equal(t, want, string(rec.Text))
			require.Equal(t, want == "two", rec.Truncated)
		case <-time.After(time.Second):
			t.Fatalf("record %d not forwarded", i)
		}
	}
	require.Equal(t, uint32(2), f.renderer.Rendered())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRendererForwardNeverBlocks(t *testing.T) {
	f := newRenderFixture(16, 20)
	records := make(chan line.Record) // unbuffered, nobody reading
	f.renderer.Forward(records)
	f.renderOne(t, "a")
	f.renderOne(t, "b")
	require.Equal(t, uint32(2), f.renderer.Rendered())
	require.Equal(t, "b", trimRight(f.dev.row(2)))
}

func trimRight(s string) string {
	return string(bytes.TrimRight([]byte(s), " "))
}

// pixelDisplay is a drivers.Displayer in memory.
type pixelDisplay struct {
	w, h    int16
	pixels  map[[2]int16]color.RGBA
	flushes int
}

func newPixelDisplay(w, h int16) *pixelDisplay {
	return &pixelDisplay{w: w, h: h, pixels: make(map[[2]int16]color.RGBA)}
}

func (d *pixelDisplay) Size() (int16, int16) { return d.w, d.h }

func (d *pixelDisplay) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= d.w || y >= d.h {
		return
	}
	d.pixels[[2]int16{x, y}] = c
}

func (d *pixelDisplay) Display() error {
	d.flushes++
	return nil
}

func (d *pixelDisplay) lit() int {
	n := 0
	for _, c := range d.pixels {
		if c == white {
			n++
		}
	}
	return n
}

func TestGraphicSurfaceSpacesErase(t *testing.T) {
	disp := newPixelDisplay(128, 64)
	s := NewGraphicSurface(disp, GraphicConfig{Font: &proggy.TinySZ8pt7b})

	require.NoError(t, s.DrawText([]byte("HELLO"), 4, 20, AlignLeft))
	require.NotZero(t, disp.lit())
	require.Equal(t, 1, disp.flushes)

	require.NoError(t, s.DrawText([]byte("          "), 4, 20, AlignLeft))
	require.Zero(t, disp.lit(), "opaque spaces leave no glyph pixels")
	require.Equal(t, 2, disp.flushes)
}

func TestGraphicSurfaceOffScreen(t *testing.T) {
	disp := newPixelDisplay(128, 64)
	s := NewGraphicSurface(disp, GraphicConfig{Font: &proggy.TinySZ8pt7b})
	require.ErrorIs(t, s.DrawText([]byte("x"), 0, 64, AlignLeft), ErrOffScreen)
	require.Zero(t, disp.flushes)
}
