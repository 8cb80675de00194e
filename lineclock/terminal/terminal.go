// Package terminal wires the serial collector, the line renderer and the
// clock into one unit that owns every piece of shared state.
package terminal

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/harveysanders/picoterm/lineclock/config"
	"github.com/harveysanders/picoterm/lineclock/echo"
	"github.com/harveysanders/picoterm/lineclock/lcd"
	"github.com/harveysanders/picoterm/lineclock/line"
	"github.com/harveysanders/picoterm/lineclock/rtc"
)

// Terminal owns the mailbox and the display handle and starts the units
// that share them.
type Terminal struct {
	cfg      *config.Config
	logger   *slog.Logger
	mailbox  *line.Mailbox
	surface  *lcd.Shared
	collect  *echo.Collector
	renderer *lcd.Renderer
	clock    *rtc.Service
}

// New builds a terminal from validated configuration and the board's
// collaborators.
func New(cfg *config.Config, port echo.Port, surface lcd.Surface, calendar rtc.Calendar, logger *slog.Logger) (*Terminal, error) {
	if cfg == nil {
		return nil, errors.New("terminal: nil config")
	}
	if port == nil || surface == nil || calendar == nil {
		return nil, errors.New("terminal: port, surface and calendar are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mb := line.NewMailbox(cfg.Line.MailboxDepth, cfg.Line.Capacity)
	shared := lcd.NewShared(surface)

	t := &Terminal{
		cfg:     cfg,
		logger:  logger,
		mailbox: mb,
		surface: shared,
	}
	t.collect = echo.NewCollector(port, mb, echo.Config{
		Terminator: cfg.Serial.Terminator,
		Overflow:   cfg.OverflowPolicy(),
	}, logger.With(slog.String("unit", "echo")))
	t.renderer = lcd.NewRenderer(shared, mb, lcd.RendererConfig{
		X:        cfg.Line.X,
		Y:        cfg.Line.Y,
		Align:    cfg.LineAlign(),
		Margin:   cfg.Line.EraseMargin,
		Capacity: cfg.Line.Capacity,
	}, logger.With(slog.String("unit", "lcd")))
	t.clock = rtc.NewService(calendar, shared, rtc.Position{
		X:     cfg.Clock.X,
		Y:     cfg.Clock.Y,
		Align: cfg.ClockAlign(),
	}, logger.With(slog.String("unit", "rtc")))
	return t, nil
}

// Boot seeds the calendar and draws the time once. An error here is an
// initialization failure.
func (t *Terminal) Boot() error {
	seed, err := t.cfg.SeedTime()
	if err != nil {
		return errors.New("terminal:seed:" + err.Error())
	}
	if _, err := t.clock.Initialize(seed, t.cfg.ReseedPolicy()); err != nil {
		return err
	}
	return t.clock.RenderCurrentTime()
}

// Forward mirrors every rendered line to ch. Must be called before Run.
func (t *Terminal) Forward(ch chan<- line.Record) {
	t.renderer.Forward(ch)
}

// Run starts the collector, the renderer and the clock refresher and blocks
// until one of them stops. The remaining units are cancelled and waited for.
func (t *Terminal) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	units := []struct {
		name string
		run  func(context.Context) error
	}{
		{"echo", t.collect.Run},
		{"lcd", t.renderer.Run},
		{"rtc", func(ctx context.Context) error { return t.clock.Run(ctx, t.cfg.RefreshInterval()) }},
	}

	errs := make(chan error, len(units))
	for _, u := range units {
		go func(name string, run func(context.Context) error) {
			err := run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Error("terminal:unit-stopped", slog.String("unit", name), slog.String("err", err.Error()))
			}
			errs <- err
		}(u.name, u.run)
	}
	t.logger.Info("terminal:running",
		slog.Int("capacity", t.cfg.Line.Capacity),
		slog.Int("depth", t.mailbox.Depth()),
		slog.Duration("refresh", t.cfg.RefreshInterval()),
	)

	first := <-errs
	cancel()
	for i := 1; i < len(units); i++ {
		<-errs
	}
	return first
}

// Rendered returns the number of lines drawn.
func (t *Terminal) Rendered() uint32 { return t.renderer.Rendered() }

// Clock returns the clock service.
func (t *Terminal) Clock() *rtc.Service { return t.clock }
