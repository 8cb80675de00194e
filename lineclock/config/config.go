// Package config describes the firmware settings. The settings are compiled
// into the image from picoterm.yaml; there is no runtime configuration
// surface on the device.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/harveysanders/picoterm/lineclock/echo"
	"github.com/harveysanders/picoterm/lineclock/lcd"
	"github.com/harveysanders/picoterm/lineclock/rtc"
)

// Embedded is the configuration built into the firmware.
//
//go:embed picoterm.yaml
var Embedded []byte

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Line    LineConfig    `yaml:"line"`
	Clock   ClockConfig   `yaml:"clock"`
	Display DisplayConfig `yaml:"display"`
	Uplink  UplinkConfig  `yaml:"uplink"`
	Log     LogConfig     `yaml:"log"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Baud       uint32 `yaml:"baud"`
	Terminator uint8  `yaml:"terminator"` // 0 => carriage return
}

// ---- LINE ----

type LineConfig struct {
	Capacity     int    `yaml:"capacity"`
	EraseMargin  int    `yaml:"erase_margin"`
	MailboxDepth int    `yaml:"mailbox_depth"`
	Overflow     string `yaml:"overflow"` // flush | drop
	X            int16  `yaml:"x"`
	Y            int16  `yaml:"y"`
	Align        string `yaml:"align"` // left | center
}

// ---- CLOCK ----

type ClockConfig struct {
	X         int16  `yaml:"x"`
	Y         int16  `yaml:"y"`
	Align     string `yaml:"align"`
	RefreshMs int    `yaml:"refresh_ms"`
	Seed      string `yaml:"seed"`   // rtc.Layout
	Reseed    string `yaml:"reseed"` // always | if-invalid, no default
}

// ---- DISPLAY ----

// On hd44780 the line and clock x/y are column and row. On ssd1306 they are
// the pixel position of the text baseline.
type DisplayConfig struct {
	Kind string `yaml:"kind"` // hd44780 | ssd1306

	// Character grid (hd44780).
	Columns int16 `yaml:"columns"`
	Rows    int16 `yaml:"rows"`

	// Pixel display (ssd1306).
	Width  int16 `yaml:"width"`
	Height int16 `yaml:"height"`

	// I2C addresses probed in order.
	Addresses []uint16 `yaml:"i2c_addresses"`
}

// Font is the face used on pixel displays.
func (d DisplayConfig) Font() *tinyfont.Font {
	return &proggy.TinySZ8pt7b
}

// TextBand returns how far a text line reaches above and below its
// baseline on a pixel display. lcd.GraphicSurface paints that band.
func (d DisplayConfig) TextBand() (ascent, descent int16) {
	adv := int16(d.Font().YAdvance)
	return adv, adv / 2
}

// ---- UPLINK ----

type UplinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Hostname    string `yaml:"hostname"`
	Broker      string `yaml:"broker"` // host:port
	Topic       string `yaml:"topic"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	HeartbeatMs int    `yaml:"heartbeat_ms"`
	TCPBufSize  int    `yaml:"tcp_buf_size"`
	QueueSize   int    `yaml:"queue_size"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load decodes, defaults and validates a YAML document.
func Load(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.New("config:decode:" + err.Error())
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OverflowPolicy returns the collector overflow policy.
func (c *Config) OverflowPolicy() echo.OverflowPolicy {
	if c.Line.Overflow == "drop" {
		return echo.OverflowDrop
	}
	return echo.OverflowFlush
}

// ReseedPolicy returns the clock reseed policy, zero when unset.
func (c *Config) ReseedPolicy() rtc.ReseedPolicy {
	switch c.Clock.Reseed {
	case "always":
		return rtc.ReseedAlways
	case "if-invalid":
		return rtc.ReseedIfInvalid
	}
	return 0
}

// SeedTime parses the clock seed.
func (c *Config) SeedTime() (time.Time, error) {
	return time.Parse(rtc.Layout, c.Clock.Seed)
}

// RefreshInterval is the clock redraw period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Clock.RefreshMs) * time.Millisecond
}

// LineAlign returns the alignment of the echoed line.
func (c *Config) LineAlign() lcd.Align { return parseAlign(c.Line.Align) }

// ClockAlign returns the alignment of the clock.
func (c *Config) ClockAlign() lcd.Align { return parseAlign(c.Clock.Align) }

// LogLevel returns the slog level.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseAlign(s string) lcd.Align {
	if strings.EqualFold(s, "center") {
		return lcd.AlignCenter
	}
	return lcd.AlignLeft
}
