package rtc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harveysanders/picoterm/lineclock/lcd"
)

// tickingCalendar counts from the last SetTime like a real module.
type tickingCalendar struct {
	lock    sync.Mutex
	base    time.Time
	setAt   time.Time
	sets    int
	valid   bool
	running bool
	readErr error
}

func (c *tickingCalendar) SetTime(t time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.base, c.setAt = t, time.Now()
	c.sets++
	c.valid, c.running = true, true
	return nil
}

func (c *tickingCalendar) ReadTime() (time.Time, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.readErr != nil {
		return time.Time{}, c.readErr
	}
	return c.base.Add(time.Since(c.setAt).Truncate(time.Second)), nil
}

func (c *tickingCalendar) IsTimeValid() bool { return c.valid }
func (c *tickingCalendar) IsRunning() bool   { return c.running }

// plainCalendar cannot report whether it kept time.
type plainCalendar struct{ tickingCalendar }

func (c *plainCalendar) IsTimeValid() bool { return true }

type calendarOnly struct{ Calendar }

type textSurface struct {
	lock  sync.Mutex
	texts []string
	at    [][2]int16
}

func (s *textSurface) DrawText(text []byte, x, y int16, _ lcd.Align) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.texts = append(s.texts, string(text))
	s.at = append(s.at, [2]int16{x, y})
	return nil
}

func (s *textSurface) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.texts)
}

var seed = time.Date(2018, time.April, 27, 12, 30, 0, 0, time.UTC)

func TestClockRoundTrip(t *testing.T) {
	cal := &tickingCalendar{}
	surface := &textSurface{}
	svc := NewService(cal, lcd.NewShared(surface), Position{X: 0, Y: 0}, nil)

	seeded, err := svc.Initialize(seed, ReseedAlways)
	require.NoError(t, err)
	require.True(t, seeded)

	now, err := svc.Now()
	require.NoError(t, err)
	require.WithinDuration(t, seed, now, time.Second)

	require.NoError(t, svc.RenderCurrentTime())
	require.Len(t, surface.texts, 1)
	require.Regexp(t, `^2018-04-27 12:30:0\d$`, surface.texts[0])
	require.Equal(t, [2]int16{0, 0}, surface.at[0])
}

func TestFormat(t *testing.T) {
	got := Format(nil, time.Date(2024, time.January, 5, 7, 8, 9, 0, time.UTC))
	require.Equal(t, "2024-01-05 07:08:09", string(got))
}

func TestInitializeIfInvalidKeepsRunningClock(t *testing.T) {
	running := time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)
	cal := &tickingCalendar{}
	require.NoError(t, cal.SetTime(running))

	svc := NewService(cal, lcd.NewShared(&textSurface{}), Position{}, nil)
	seeded, err := svc.Initialize(seed, ReseedIfInvalid)
	require.NoError(t, err)
	require.False(t, seeded)
	require.Equal(t, 1, cal.sets)

	now, err := svc.Now()
	require.NoError(t, err)
	require.WithinDuration(t, running, now, time.Second)
}

func TestInitializeIfInvalidSeedsLostClock(t *testing.T) {
	cases := []struct {
		name string
		cal  *tickingCalendar
	}{
		{"oscillator stopped flag", &tickingCalendar{valid: false, running: true}},
		{"not running", &tickingCalendar{valid: true, running: false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.cal, lcd.NewShared(&textSurface{}), Position{}, nil)
			seeded, err := svc.Initialize(seed, ReseedIfInvalid)
			require.NoError(t, err)
			require.True(t, seeded)
			require.Equal(t, 1, tc.cal.sets)
		})
	}
}

func TestInitializeIfInvalidWithoutReporting(t *testing.T) {
	cal := &tickingCalendar{}
	svc := NewService(calendarOnly{cal}, lcd.NewShared(&textSurface{}), Position{}, nil)
	seeded, err := svc.Initialize(seed, ReseedIfInvalid)
	require.NoError(t, err)
	require.True(t, seeded, "calendars that cannot report are seeded")
}

func TestInitializeAlwaysOverwrites(t *testing.T) {
	cal := &plainCalendar{}
	require.NoError(t, cal.SetTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	svc := NewService(cal, lcd.NewShared(&textSurface{}), Position{}, nil)
	seeded, err := svc.Initialize(seed, ReseedAlways)
	require.NoError(t, err)
	require.True(t, seeded)
	now, err := svc.Now()
	require.NoError(t, err)
	require.WithinDuration(t, seed, now, time.Second)
}

func TestInitializeRequiresPolicy(t *testing.T) {
	svc := NewService(&tickingCalendar{}, lcd.NewShared(&textSurface{}), Position{}, nil)
	_, err := svc.Initialize(seed, 0)
	require.ErrorIs(t, err, ErrNoPolicy)
}

func TestRenderReadError(t *testing.T) {
	cal := &tickingCalendar{readErr: errors.New("i2c nack")}
	surface := &textSurface{}
	svc := NewService(cal, lcd.NewShared(surface), Position{}, nil)
	require.EqualError(t, svc.RenderCurrentTime(), "rtc:read:i2c nack")
	require.Empty(t, surface.texts)
}

func TestRunRefreshes(t *testing.T) {
	cal := &tickingCalendar{}
	require.NoError(t, cal.SetTime(seed))
	surface := &textSurface{}
	svc := NewService(cal, lcd.NewShared(surface), Position{X: 1, Y: 0}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return surface.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	surface.lock.Lock()
	defer surface.lock.Unlock()
	for _, s := range surface.texts {
		require.True(t, bytes.HasPrefix([]byte(s), []byte("2018-04-27 12:30:")))
	}
}

func TestReseedPolicyString(t *testing.T) {
	require.Equal(t, "always", ReseedAlways.String())
	require.Equal(t, "if-invalid", ReseedIfInvalid.String())
	require.Equal(t, "unset", ReseedPolicy(0).String())
}
