// Package uplink mirrors rendered lines to an MQTT broker over the Pico W
// network stack. It is optional: the terminal works the same without it.
package uplink

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"strconv"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"

	"github.com/harveysanders/picoterm/lineclock/line"
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// Message is the published payload for one line.
type Message struct {
	Seq       uint32        `json:"seq"`
	Line      string        `json:"line"`
	Truncated bool          `json:"truncated"`
	SinceBoot time.Duration `json:"sinceBoot"` // Nanoseconds since boot.
}

// Client publishes line records.
type Client struct {
	ID                string
	Topic             string
	Timeout           time.Duration
	TCPBufSize        int
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	Username          string // MQTT broker username (optional)
	Password          string // MQTT broker password (optional, requires Username)

	// Boot is the reference for Message.SinceBoot.
	Boot time.Time
}

// ConnectAndPublish connects to the broker at addr and publishes every
// record received. It reconnects forever and only returns on a setup error.
func (c *Client) ConnectAndPublish(stack *xnet.StackAsync, addr string, records <-chan line.Record) error {
	const pollTime = 5 * time.Millisecond
	logger := c.logger()

	mqttHost, port, err := ParseBroker(addr)
	if err != nil {
		return errors.New("uplink:broker " + addr + ": " + err.Error())
	}

	rstack := stack.StackRetrying(pollTime)

	// Try to parse as IP first, otherwise DNS lookup
	var brokerAddr netip.Addr
	if parsed, err := netip.ParseAddr(mqttHost); err == nil {
		brokerAddr = parsed
	} else {
		logger.Info("uplink:dns-resolving", slog.String("host", mqttHost))
		addrs, err := rstack.DoLookupIP(mqttHost, 5*time.Second, 3)
		if err != nil {
			return errors.New("uplink:dns lookup for " + mqttHost + ": " + err.Error())
		}
		if len(addrs) == 0 {
			return errors.New("uplink:dns lookup for " + mqttHost + ": no addresses returned")
		}
		brokerAddr = addrs[0]
	}
	logger.Info("uplink:broker", slog.String("addr", brokerAddr.String()), slog.Uint64("port", uint64(port)))

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(_ mqtt.Header, varPub mqtt.VariablesPublish, _ io.Reader) error {
			logger.Debug("uplink:received", slog.String("topic", string(varPub.TopicName)))
			return nil
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(c.ID))
	if c.Username != "" {
		varconn.Username = []byte(c.Username)
		if c.Password != "" {
			varconn.Password = []byte(c.Password)
		}
	}
	pubVar := mqtt.VariablesPublish{TopicName: []byte(c.Topic)}

	var conn tcp.Conn
	err = conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, c.TCPBufSize),
		TxBuf:             make([]byte, c.TCPBufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return errors.New("uplink:tcp configure:" + err.Error())
	}

	closeConn := func(reason string) {
		logger.Error("uplink:closing", slog.String("reason", reason))
		conn.Close()
		for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
	}

	serverAddr := netip.AddrPortFrom(brokerAddr, port)
	for {
		localPort := uint16(stack.Prand32()>>17) + 1024
		logger.Info("uplink:dialing", slog.Uint64("localPort", uint64(localPort)))
		if err := rstack.DoDialTCP(&conn, localPort, serverAddr, 10*time.Second, 3); err != nil {
			closeConn("dial failed: " + err.Error())
			time.Sleep(2 * time.Second)
			continue
		}

		conn.SetDeadline(time.Now().Add(c.Timeout))
		if err := client.StartConnect(&conn, &varconn); err != nil {
			closeConn("connect failed: " + err.Error())
			continue
		}
		for retries := 50; retries > 0 && !client.IsConnected(); retries-- {
			time.Sleep(100 * time.Millisecond)
			if err := client.HandleNext(); err != nil {
				logger.Error("uplink:handle-next", slog.String("err", err.Error()))
			}
		}
		if !client.IsConnected() {
			closeConn("connect timed out")
			continue
		}
		logger.Info("uplink:connected")

		c.publishLoop(client, &conn, pubVar, stack.Prand32, records)

		logger.Error("uplink:disconnected", slog.Any("reason", client.Err()))
		closeConn("disconnected")
		runtime.Gosched()
	}
}

// session is the part of *mqtt.Client the publish loop drives.
type session interface {
	IsConnected() bool
	PublishPayload(flags mqtt.PacketFlags, varPub mqtt.VariablesPublish, payload []byte) error
	HandleNext() error
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (c *Client) publishLoop(client session, conn deadliner, pubVar mqtt.VariablesPublish, prand32 func() uint32, records <-chan line.Record) {
	logger := c.logger()
	heartbeat := time.NewTicker(c.HeartbeatInterval)
	defer heartbeat.Stop()

	for client.IsConnected() {
		select {
		case rec := <-records:
			payload, err := c.encode(rec)
			if err != nil {
				logger.Error("uplink:marshal", slog.String("err", err.Error()))
				continue
			}
			conn.SetDeadline(time.Now().Add(c.Timeout))
			pubVar.PacketIdentifier = uint16(prand32())
			if err := client.PublishPayload(pubFlags, pubVar, payload); err != nil {
				logger.Error("uplink:publish", slog.String("err", err.Error()))
				continue
			}
			logger.Debug("uplink:published", slog.Uint64("seq", uint64(rec.Seq)))
			if err := client.HandleNext(); err != nil {
				logger.Error("uplink:handle-next", slog.String("err", err.Error()))
			}
		case <-heartbeat.C:
			// Nothing published for a while: let the client ping the broker.
			if err := client.HandleNext(); err != nil {
				logger.Error("uplink:handle-next", slog.String("err", err.Error()))
			}
		default:
			// TinyGo runs goroutines on a single core; yield so the
			// collector and renderer are not starved.
			runtime.Gosched()
		}
	}
}

func (c *Client) encode(rec line.Record) ([]byte, error) {
	msg := Message{
		Seq:       rec.Seq,
		Line:      string(rec.Text),
		Truncated: rec.Truncated,
	}
	if !c.Boot.IsZero() {
		msg.SinceBoot = time.Since(c.Boot)
	}
	return json.Marshal(msg)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// ParseBroker splits a broker address into host and port. IPv6 hosts are
// written in brackets, as in "[fe80::1]:1883"; the brackets are removed.
func ParseBroker(addr string) (host string, port uint16, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.New("must be host:port: " + err.Error())
	}
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port = parsePort(portStr)
	if port == 0 {
		return "", 0, errors.New("invalid port " + strconv.Quote(portStr))
	}
	return host, port, nil
}

// parsePort converts a port string to uint16.
// Returns 0 if parsing fails.
func parsePort(portStr string) uint16 {
	var port uint32
	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return 0
		}
		port = port*10 + uint32(portStr[i]-'0')
		if port > 0xFFFF {
			return 0
		}
	}
	return uint16(port)
}
