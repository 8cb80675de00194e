package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/harveysanders/picoterm/lineclock/rtc"
	"github.com/harveysanders/picoterm/lineclock/uplink"
)

// MaxLineCapacity bounds line.capacity. Every mailbox buffer is allocated
// at boot from the RP2040 heap.
const MaxLineCapacity = 1024

// The DS3231 stores the year as an offset from 2000 in one century.
const (
	minSeedYear = 2000
	maxSeedYear = 2199
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.Serial.Baud == 0 {
		return fmt.Errorf("serial: baud must be > 0")
	}

	// ------------------------------------------------------------
	// LINE
	// ------------------------------------------------------------

	l := cfg.Line
	if l.Capacity < 2 {
		return fmt.Errorf("line: capacity %d leaves no room for a byte and the terminator", l.Capacity)
	}
	if l.Capacity > MaxLineCapacity {
		return fmt.Errorf("line: capacity %d exceeds %d", l.Capacity, MaxLineCapacity)
	}
	if l.EraseMargin < 1 {
		return fmt.Errorf("line: erase_margin must be >= 1, got %d", l.EraseMargin)
	}
	if l.MailboxDepth < 1 {
		return fmt.Errorf("line: mailbox_depth must be >= 1, got %d", l.MailboxDepth)
	}
	switch l.Overflow {
	case "flush", "drop":
	default:
		return fmt.Errorf("line: overflow must be flush or drop, got %q", l.Overflow)
	}
	if err := validateAlign("line", l.Align); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// CLOCK
	// ------------------------------------------------------------

	c := cfg.Clock
	switch c.Reseed {
	case "always", "if-invalid":
	case "":
		return fmt.Errorf("clock: reseed must be set explicitly (always or if-invalid)")
	default:
		return fmt.Errorf("clock: reseed must be always or if-invalid, got %q", c.Reseed)
	}
	seed, err := time.Parse(rtc.Layout, c.Seed)
	if err != nil {
		return fmt.Errorf("clock: seed %q is not %q: %v", c.Seed, rtc.Layout, err)
	}
	if y := seed.Year(); y < minSeedYear || y > maxSeedYear {
		return fmt.Errorf("clock: seed year %d outside %d-%d", y, minSeedYear, maxSeedYear)
	}
	if c.RefreshMs <= 0 {
		return fmt.Errorf("clock: refresh_ms must be > 0")
	}
	if err := validateAlign("clock", c.Align); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// DISPLAY
	// ------------------------------------------------------------

	d := cfg.Display
	switch d.Kind {
	case "hd44780":
		if d.Columns <= 0 || d.Rows <= 0 {
			return fmt.Errorf("display: hd44780 needs columns and rows")
		}
		if l.Y < 0 || l.Y >= d.Rows {
			return fmt.Errorf("line: y=%d outside display (%d rows)", l.Y, d.Rows)
		}
		if c.Y < 0 || c.Y >= d.Rows {
			return fmt.Errorf("clock: y=%d outside display (%d rows)", c.Y, d.Rows)
		}
		if c.Y == l.Y {
			return fmt.Errorf("clock: y=%d overlaps the line area", c.Y)
		}
	case "ssd1306":
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("display: ssd1306 needs width and height")
		}
		// Each text is painted over [y-ascent, y+descent).
		ascent, descent := d.TextBand()
		if l.Y-ascent < 0 || l.Y+descent > d.Height {
			return fmt.Errorf("line: baseline y=%d outside display (text band %d..%d, height %d)",
				l.Y, l.Y-ascent, l.Y+descent, d.Height)
		}
		if c.Y-ascent < 0 || c.Y+descent > d.Height {
			return fmt.Errorf("clock: baseline y=%d outside display (text band %d..%d, height %d)",
				c.Y, c.Y-ascent, c.Y+descent, d.Height)
		}
		if c.Y-ascent < l.Y+descent && l.Y-ascent < c.Y+descent {
			return fmt.Errorf("clock: baseline y=%d overlaps the line at y=%d", c.Y, l.Y)
		}
	default:
		return fmt.Errorf("display: unsupported kind %q", d.Kind)
	}
	if len(d.Addresses) == 0 {
		return fmt.Errorf("display: at least one i2c address required")
	}
	for _, a := range d.Addresses {
		if a > 0x7F {
			return fmt.Errorf("display: i2c address 0x%X is not 7-bit", a)
		}
	}

	// ------------------------------------------------------------
	// UPLINK (OPT-IN)
	// ------------------------------------------------------------

	if u := cfg.Uplink; u.Enabled {
		if _, _, err := uplink.ParseBroker(u.Broker); err != nil {
			return fmt.Errorf("uplink: broker %q: %v", u.Broker, err)
		}
		if u.Topic == "" || u.ClientID == "" {
			return fmt.Errorf("uplink: topic and client_id required")
		}
		if u.Password != "" && u.Username == "" {
			return fmt.Errorf("uplink: password requires username")
		}
		if u.TimeoutMs <= 0 || u.HeartbeatMs <= 0 || u.TCPBufSize <= 0 || u.QueueSize <= 0 {
			return fmt.Errorf("uplink: timeout_ms, heartbeat_ms, tcp_buf_size and queue_size must be > 0")
		}
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log: level %q: %v", cfg.Log.Level, err)
	}

	return nil
}

func validateAlign(section, s string) error {
	switch s {
	case "left", "center":
		return nil
	}
	return fmt.Errorf("%s: align must be left or center, got %q", section, s)
}
