//go:build rp2040 || rp2350

// Command lineclock is a serial line terminal: bytes typed on UART0 are
// echoed back, each completed line is shown on an I2C display, and a
// DS3231 keeps the date and time shown above it across power cycles.
//
// Logs go to the USB serial console, separate from the echo UART.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"tinygo.org/x/drivers/ds3231"

	"github.com/harveysanders/picoterm/lineclock/config"
	"github.com/harveysanders/picoterm/lineclock/line"
	"github.com/harveysanders/picoterm/lineclock/terminal"
	"github.com/harveysanders/picoterm/lineclock/uplink"
	"github.com/harveysanders/picoterm/lineclock/wifi"
)

func main() {
	boot := time.Now()

	cfg, err := config.Load(config.Embedded)
	if err != nil {
		printErrForever(slog.New(slog.NewTextHandler(machine.Serial, nil)), "load config", slog.String("reason", err.Error()))
	}
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))

	// Echo UART: binary, no local echo, blocking reads through uartPort.
	uart := machine.UART0
	err = uart.Configure(machine.UARTConfig{
		BaudRate: cfg.Serial.Baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		printErrForever(logger, "configure UART", slog.String("reason", err.Error()))
	}

	// Display and calendar share I2C0.
	err = machine.I2C0.Configure(machine.I2CConfig{
		SDA: machine.GP4,
		SCL: machine.GP5,
	})
	if err != nil {
		printErrForever(logger, "configure I2C", slog.String("reason", err.Error()))
	}

	surface, err := configureDisplay(machine.I2C0, cfg.Display)
	if err != nil {
		printErrForever(logger, "configure display", slog.String("reason", err.Error()))
	}

	calendar := ds3231.New(machine.I2C0)
	if !calendar.Configure() {
		printErrForever(logger, "configure DS3231")
	}

	term, err := terminal.New(cfg, &uartPort{uart: uart}, surface, &calendar, logger)
	if err != nil {
		printErrForever(logger, "build terminal", slog.String("reason", err.Error()))
	}
	if err := term.Boot(); err != nil {
		printErrForever(logger, "boot clock", slog.String("reason", err.Error()))
	}
	if !calendar.IsRunning() {
		if err := calendar.SetRunning(true); err != nil {
			printErrForever(logger, "start DS3231", slog.String("reason", err.Error()))
		}
	}

	if cfg.Uplink.Enabled {
		records := make(chan line.Record, cfg.Uplink.QueueSize)
		term.Forward(records)
		go runUplink(cfg.Uplink, boot, records, logger)
	}

	go func() {
		err := term.Run(context.Background())
		printErrForever(logger, "terminal stopped", slog.Any("reason", err))
	}()

	heartbeat(machine.GP21)
}

// heartbeat blinks led at 1Hz. It blocks forever.
func heartbeat(led machine.Pin) {
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(500 * time.Millisecond)
		led.Low()
		time.Sleep(500 * time.Millisecond)
	}
}

func runUplink(cfg config.UplinkConfig, boot time.Time, records <-chan line.Record, logger *slog.Logger) {
	logger = logger.With(slog.String("unit", "uplink"))
	stack, err := wifi.Connect(wifi.Config{
		Hostname: cfg.Hostname,
		Logger:   logger,
	})
	if err != nil {
		// The terminal keeps working without the uplink.
		logger.Error("uplink:wifi", slog.String("reason", err.Error()))
		return
	}

	c := uplink.Client{
		ID:                cfg.ClientID,
		Topic:             cfg.Topic,
		Timeout:           time.Duration(cfg.TimeoutMs) * time.Millisecond,
		TCPBufSize:        cfg.TCPBufSize,
		HeartbeatInterval: time.Duration(cfg.HeartbeatMs) * time.Millisecond,
		Username:          cfg.Username,
		Password:          cfg.Password,
		Logger:            logger,
		Boot:              boot,
	}
	if err := c.ConnectAndPublish(stack.Net(), cfg.Broker, records); err != nil {
		logger.Error("uplink:stopped", slog.String("reason", err.Error()))
	}
}

// printErrForever logs msg @ 1hz. It blocks forever: an initialization
// failure stops the firmware, and repeating the error makes sure a serial
// monitor attached late still sees it.
func printErrForever(logger *slog.Logger, msg string, args ...any) {
	for {
		logger.Error(msg, args...)
		time.Sleep(time.Second)
	}
}
