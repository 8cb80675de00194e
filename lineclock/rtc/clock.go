// Package rtc keeps the wall clock in a battery-backed calendar module and
// shows it on the display.
package rtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/harveysanders/picoterm/lineclock/lcd"
)

// Layout is the on-screen time format.
const Layout = "2006-01-02 15:04:05"

// Calendar is a hardware calendar that keeps counting across resets and
// low-power states, such as a DS3231 (tinygo.org/x/drivers/ds3231).
type Calendar interface {
	SetTime(t time.Time) error
	ReadTime() (time.Time, error)
}

// validityReporter is implemented by calendars that can tell whether they
// lost time since they were last set.
type validityReporter interface{ IsTimeValid() bool }

// runningReporter is implemented by calendars whose oscillator can be stopped.
type runningReporter interface{ IsRunning() bool }

// ReseedPolicy decides when Initialize writes the seed time.
type ReseedPolicy uint8

const (
	// ReseedAlways writes the seed on every boot.
	ReseedAlways ReseedPolicy = iota + 1
	// ReseedIfInvalid writes the seed only when the calendar reports that it
	// lost time or is stopped. Calendars that cannot report are always seeded.
	ReseedIfInvalid
)

func (p ReseedPolicy) String() string {
	switch p {
	case ReseedAlways:
		return "always"
	case ReseedIfInvalid:
		return "if-invalid"
	}
	return "unset"
}

// ErrNoPolicy is returned by Initialize when no reseed policy was chosen.
var ErrNoPolicy = errors.New("rtc: reseed policy not set")

// Position is where the time is drawn.
type Position struct {
	X, Y  int16
	Align lcd.Align
}

// Service reads the calendar and draws the current time. It keeps no time
// state of its own.
type Service struct {
	calendar Calendar
	surface  *lcd.Shared
	pos      Position
	logger   *slog.Logger
	buf      []byte
}

// NewService creates a clock service drawing on surface at pos.
func NewService(calendar Calendar, surface *lcd.Shared, pos Position, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		calendar: calendar,
		surface:  surface,
		pos:      pos,
		logger:   logger,
		// Preallocated so refreshes do not churn the heap.
		buf: make([]byte, 0, len(Layout)),
	}
}

// Initialize writes seed into the calendar according to policy. It reports
// whether the calendar was written.
func (s *Service) Initialize(seed time.Time, policy ReseedPolicy) (bool, error) {
	switch policy {
	case ReseedAlways:
	case ReseedIfInvalid:
		if s.keepsTime() {
			s.logger.Info("rtc:keep", slog.String("policy", policy.String()))
			return false, nil
		}
	default:
		return false, ErrNoPolicy
	}
	if err := s.calendar.SetTime(seed); err != nil {
		return false, errors.New("rtc:seed:" + err.Error())
	}
	s.logger.Info("rtc:seeded", slog.String("time", seed.Format(Layout)), slog.String("policy", policy.String()))
	return true, nil
}

func (s *Service) keepsTime() bool {
	v, ok := s.calendar.(validityReporter)
	if !ok || !v.IsTimeValid() {
		return false
	}
	if r, ok := s.calendar.(runningReporter); ok && !r.IsRunning() {
		return false
	}
	return true
}

// Now reads the calendar.
func (s *Service) Now() (time.Time, error) {
	t, err := s.calendar.ReadTime()
	if err != nil {
		return time.Time{}, errors.New("rtc:read:" + err.Error())
	}
	return t, nil
}

// Format appends t in Layout to dst.
func Format(dst []byte, t time.Time) []byte {
	return t.AppendFormat(dst, Layout)
}

// RenderCurrentTime reads the calendar and draws it.
func (s *Service) RenderCurrentTime() error {
	t, err := s.Now()
	if err != nil {
		return err
	}
	s.buf = Format(s.buf[:0], t)
	if err := s.surface.DrawText(s.buf, s.pos.X, s.pos.Y, s.pos.Align); err != nil {
		return errors.New("rtc:draw:" + err.Error())
	}
	return nil
}

// Run redraws the time every interval until ctx is done. Errors are logged
// and the next tick tries again.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RenderCurrentTime(); err != nil {
				s.logger.Error("rtc:render", slog.String("err", err.Error()))
			}
		}
	}
}
