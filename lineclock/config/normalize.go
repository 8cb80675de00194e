package config

import (
	"github.com/harveysanders/picoterm/lineclock/echo"
	"github.com/harveysanders/picoterm/lineclock/lcd"
	"github.com/harveysanders/picoterm/lineclock/line"
)

// Normalize fills unset fields with defaults.
// Clock.Reseed is deliberately left alone: it has no default.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 9600
	}
	if cfg.Serial.Terminator == 0 {
		cfg.Serial.Terminator = echo.CR
	}

	if cfg.Line.Capacity == 0 {
		cfg.Line.Capacity = line.DefaultCapacity
	}
	if cfg.Line.EraseMargin == 0 {
		cfg.Line.EraseMargin = lcd.DefaultMargin
	}
	if cfg.Line.MailboxDepth == 0 {
		cfg.Line.MailboxDepth = line.DefaultDepth
	}
	if cfg.Line.Overflow == "" {
		cfg.Line.Overflow = "flush"
	}
	if cfg.Line.Align == "" {
		cfg.Line.Align = "left"
	}

	if cfg.Clock.Align == "" {
		cfg.Clock.Align = "left"
	}
	if cfg.Clock.RefreshMs == 0 {
		cfg.Clock.RefreshMs = 1000
	}

	switch cfg.Display.Kind {
	case "":
		cfg.Display.Kind = "hd44780"
		fallthrough
	case "hd44780":
		if cfg.Display.Columns == 0 {
			cfg.Display.Columns = 20
		}
		if cfg.Display.Rows == 0 {
			cfg.Display.Rows = 4
		}
		if len(cfg.Display.Addresses) == 0 {
			// Common PCF8574 backpack addresses.
			cfg.Display.Addresses = []uint16{0x27, 0x3F}
		}
	case "ssd1306":
		if cfg.Display.Width == 0 {
			cfg.Display.Width = 128
		}
		if cfg.Display.Height == 0 {
			cfg.Display.Height = 64
		}
		if len(cfg.Display.Addresses) == 0 {
			cfg.Display.Addresses = []uint16{0x3C, 0x3D}
		}
		// A zero baseline puts the whole text above the screen, so zero
		// means unset. The line sits one blank band below the clock.
		ascent, descent := cfg.Display.TextBand()
		if cfg.Clock.Y == 0 {
			cfg.Clock.Y = ascent
		}
		if cfg.Line.Y == 0 {
			cfg.Line.Y = cfg.Clock.Y + 2*(ascent+descent)
		}
	}

	u := &cfg.Uplink
	if u.Hostname == "" {
		u.Hostname = "picoterm"
	}
	if u.ClientID == "" {
		u.ClientID = "picoterm"
	}
	if u.Topic == "" {
		u.Topic = "picoterm/lines"
	}
	if u.TimeoutMs == 0 {
		u.TimeoutMs = 5000
	}
	if u.HeartbeatMs == 0 {
		u.HeartbeatMs = 30000
	}
	if u.TCPBufSize == 0 {
		u.TCPBufSize = 2030 // MTU - ethhdr - iphdr - tcphdr
	}
	if u.QueueSize == 0 {
		u.QueueSize = 8
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
