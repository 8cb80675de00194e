//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"strconv"
	"time"

	"tinygo.org/x/drivers/hd44780i2c"
	"tinygo.org/x/drivers/ssd1306"

	"github.com/harveysanders/picoterm/lineclock/config"
	"github.com/harveysanders/picoterm/lineclock/lcd"
)

// uartPort makes machine.UART blocking: ReadByte waits for a byte instead
// of failing on an empty buffer.
type uartPort struct {
	uart *machine.UART
}

func (p *uartPort) ReadByte() (byte, error) {
	for {
		if p.uart.Buffered() > 0 {
			if b, err := p.uart.ReadByte(); err == nil {
				return b, nil
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *uartPort) WriteByte(c byte) error {
	return p.uart.WriteByte(c)
}

// configureDisplay finds the configured display on the first address that
// answers and returns a surface for it.
func configureDisplay(i2c *machine.I2C, cfg config.DisplayConfig) (lcd.Surface, error) {
	addr, ok := probe(i2c, cfg.Addresses)
	if !ok {
		return nil, errors.New(cfg.Kind + " not found on addresses: " + hexList(cfg.Addresses))
	}

	switch cfg.Kind {
	case "hd44780":
		dev := hd44780i2c.New(i2c, uint8(addr))
		err := dev.Configure(hd44780i2c.Config{
			Width:  uint8(cfg.Columns),
			Height: uint8(cfg.Rows),
		})
		if err != nil {
			return nil, errors.New("hd44780:configure:" + err.Error())
		}
		dev.ClearDisplay()
		return lcd.NewCharSurface(&dev, cfg.Columns, cfg.Rows), nil
	case "ssd1306":
		dev := ssd1306.NewI2C(i2c)
		dev.Configure(ssd1306.Config{
			Address: addr,
			Width:   cfg.Width,
			Height:  cfg.Height,
		})
		dev.ClearDisplay()
		ascent, descent := cfg.TextBand()
		return lcd.NewGraphicSurface(dev, lcd.GraphicConfig{
			Font:    cfg.Font(),
			Ascent:  ascent,
			Descent: descent,
		}), nil
	}
	return nil, errors.New("unsupported display " + cfg.Kind)
}

// probe returns the first address that acknowledges a one byte read.
func probe(i2c *machine.I2C, addrs []uint16) (uint16, bool) {
	var b [1]byte
	for _, a := range addrs {
		println("checking I2C address...", a)
		if err := i2c.Tx(a, nil, b[:]); err == nil {
			return a, true
		}
	}
	return 0, false
}

func hexList(addrs []uint16) string {
	s := ""
	for i, a := range addrs {
		if i > 0 {
			s += ", "
		}
		s += "0x" + strconv.FormatUint(uint64(a), 16)
	}
	return s
}
