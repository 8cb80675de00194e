//go:build rp2040 || rp2350

// Package wifi brings up the CYW43439 radio on a Pico W and runs an lneto
// network stack over it. Credentials are set at build time:
//
//	tinygo flash -target=pico-w -ldflags="-X github.com/harveysanders/picoterm/lineclock/wifi.ssid=... -X github.com/harveysanders/picoterm/lineclock/wifi.pass=..." ./lineclock
//
// The code is adapted from the examples in the soypat/cyw43439 repository:
// https://github.com/soypat/cyw43439/tree/main/examples/common
//
// Original author: Patricio Whittingslow (soypat)
package wifi

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/x/xnet"
)

const mtu = cyw43439.MTU

var (
	ssid string
	pass string
)

// Config configures the radio and the stack.
type Config struct {
	// Hostname is used for DHCP requests.
	Hostname string
	// StaticAddr is used when DHCP does not complete. Zero means no fallback.
	StaticAddr netip.Addr
	Logger     *slog.Logger
}

// Stack is a joined WiFi link with a configured IP stack.
type Stack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	log     *slog.Logger
	sendbuf []byte
}

// Connect initializes the radio, joins the network named at build time
// (retrying until it succeeds) and configures the stack through DHCP.
func Connect(cfg Config) (*Stack, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("wifi:empty hostname")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	dev.SetLogger(logger)
	if err := dev.Init(cyw43439.DefaultWifiConfig()); err != nil {
		return nil, errors.New("wifi:init:" + err.Error())
	}
	logger.Info("wifi:init", slog.Duration("duration", time.Since(start)))

	for {
		err := dev.JoinWPA2(ssid, pass)
		if err == nil {
			break
		}
		logger.Error("wifi:join", slog.String("ssid", ssid), slog.String("err", err.Error()))
		time.Sleep(5 * time.Second)
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, errors.New("wifi:hardware address:" + err.Error())
	}
	logger.Info("wifi:joined", slog.String("mac", net.HardwareAddr(mac[:]).String()))

	stack := &Stack{
		dev:     dev,
		log:     logger,
		sendbuf: make([]byte, mtu),
	}
	err = stack.s.Reset(xnet.StackConfig{
		Hostname:        cfg.Hostname,
		MaxTCPConns:     1,
		RandSeed:        time.Since(start).Nanoseconds(),
		HardwareAddress: mac,
		MTU:             mtu,
	})
	if err != nil {
		return nil, errors.New("wifi:stack reset:" + err.Error())
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return stack.s.Demux(pkt, 0)
	})

	// DHCP needs packets moving.
	go stack.Pump()

	if err := stack.dhcp(cfg.StaticAddr); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *Stack) dhcp(static netip.Addr) error {
	requested := static
	if !requested.IsValid() {
		requested = netip.AddrFrom4([4]byte{})
	}
	if !requested.Is4() {
		return errors.New("wifi:only dhcpv4 supported")
	}

	rstack := s.s.StackRetrying(50 * time.Millisecond)
	results, err := rstack.DoDHCPv4(requested.As4(), 3*time.Second, 3)
	if err != nil {
		if static.IsValid() && !static.IsUnspecified() {
			s.log.Info("wifi:dhcp-fallback", slog.String("ip", static.String()))
			s.s.SetIPAddr(static)
			return nil
		}
		return errors.New("wifi:dhcp:" + err.Error())
	}
	if err := s.s.AssimilateDHCPResults(results); err != nil {
		return errors.New("wifi:assimilate dhcp:" + err.Error())
	}
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return errors.New("wifi:resolve gateway:" + err.Error())
	}
	s.s.SetGateway6(gatewayHW)
	s.log.Info("wifi:dhcp",
		slog.String("ip", results.AssignedAddr.String()),
		slog.String("router", results.Router.String()),
		slog.Uint64("lease_sec", uint64(results.TLease)),
	)
	return nil
}

// Pump moves packets between the radio and the stack forever.
func (s *Stack) Pump() {
	for {
		sent, recv, _ := s.exchange()
		if sent == 0 && recv == 0 {
			runtime.Gosched()
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (s *Stack) exchange() (send, recv int, err error) {
	got, errRecv := s.dev.PollOne()
	if got {
		recv = 1
	}
	if errRecv != nil {
		s.log.Error("wifi:poll", slog.String("err", errRecv.Error()))
	}

	send, err = s.s.Encapsulate(s.sendbuf, -1, 0)
	if err != nil {
		s.log.Error("wifi:encapsulate", slog.Int("plen", send), slog.String("err", err.Error()))
		return send, recv, err
	}
	if send == 0 {
		return send, recv, errRecv
	}
	if err = s.dev.SendEth(s.sendbuf[:send]); err != nil {
		s.log.Error("wifi:send", slog.Int("plen", send), slog.String("err", err.Error()))
	}
	return send, recv, err
}

// Net returns the lneto stack for TCP and DNS.
func (s *Stack) Net() *xnet.StackAsync {
	return &s.s
}
