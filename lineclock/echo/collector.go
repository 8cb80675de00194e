// Package echo implements the serial side of the terminal: every byte read
// from the port is echoed back and collected into a line, and completed lines
// are posted to a line.Mailbox.
package echo

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/harveysanders/picoterm/lineclock/line"
)

// CR is the default line terminator.
const CR = '\r'

// Port is a blocking byte-at-a-time serial link.
type Port interface {
	ReadByte() (byte, error)
	WriteByte(c byte) error
}

// OverflowPolicy decides what happens when a line outgrows its buffer.
type OverflowPolicy uint8

const (
	// OverflowFlush posts the full buffer as a truncated line and starts the
	// next line with the byte that did not fit. No input is lost.
	OverflowFlush OverflowPolicy = iota
	// OverflowDrop discards bytes until the terminator arrives; the line
	// delivered then is marked truncated. Dropped bytes are not echoed.
	OverflowDrop
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowFlush:
		return "flush"
	case OverflowDrop:
		return "drop"
	}
	return "unknown"
}

// Config configures a Collector.
type Config struct {
	Terminator byte
	Overflow   OverflowPolicy
}

// Collector reads the serial port forever and produces lines.
type Collector struct {
	port    Port
	mailbox *line.Mailbox
	cfg     Config
	logger  *slog.Logger

	buf      *line.Buffer
	dropping bool
	lines    int
}

// NewCollector creates a collector that posts completed lines to mb.
func NewCollector(port Port, mb *line.Mailbox, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Terminator == 0 {
		cfg.Terminator = CR
	}
	return &Collector{
		port:    port,
		mailbox: mb,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run collects lines until the port fails or ctx is done.
// On the device neither happens.
func (c *Collector) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := c.port.ReadByte()
		if err != nil {
			return errors.New("echo:read:" + err.Error())
		}
		// The next buffer is taken once the next line has input.
		if c.buf == nil {
			if c.buf, err = c.mailbox.Acquire(ctx); err != nil {
				return err
			}
		}
		if err := c.handle(ctx, b); err != nil {
			return err
		}
	}
}

// Lines returns the number of lines posted so far.
func (c *Collector) Lines() int { return c.lines }

func (c *Collector) handle(ctx context.Context, b byte) error {
	if b == c.cfg.Terminator {
		if err := c.echo(b); err != nil {
			return err
		}
		if c.dropping {
			c.buf.Truncated = true
			c.dropping = false
		}
		c.post()
		return nil
	}

	if c.dropping {
		return nil
	}

	if c.buf.Full() {
		switch c.cfg.Overflow {
		case OverflowDrop:
			c.logger.Warn("echo:overflow", slog.String("policy", "drop"), slog.Int("len", c.buf.Len()))
			c.dropping = true
			return nil
		default:
			c.logger.Warn("echo:overflow", slog.String("policy", "flush"), slog.Int("len", c.buf.Len()))
			c.buf.Truncated = true
			c.post()
			buf, err := c.mailbox.Acquire(ctx)
			if err != nil {
				return err
			}
			c.buf = buf
		}
	}

	if err := c.echo(b); err != nil {
		return err
	}
	// Full was checked above, Append cannot overflow here.
	return c.buf.Append(b)
}

func (c *Collector) echo(b byte) error {
	if err := c.port.WriteByte(b); err != nil {
		return errors.New("echo:write:" + err.Error())
	}
	return nil
}

// post hands the current buffer to the renderer. The collector gives up the
// buffer here and picks up a fresh one before touching any more input.
func (c *Collector) post() {
	c.logger.Debug("echo:line", slog.Int("len", c.buf.Len()), slog.Bool("truncated", c.buf.Truncated))
	c.mailbox.Post(c.buf)
	c.buf = nil
	c.lines++
}
