package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/athub/proto"
	"github.com/tarm/serial"
)

// SerialPort is the byte stream behind a serial link. Tests swap in a pipe.
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

type SerialConfig struct {
	Device      string // e.g. "/dev/ttyUSB0", "COM3"
	Baud        int
	ReadTimeout time.Duration // 0 blocks until data arrives
}

func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{Device: device, Baud: 115200}
}

// OpenSerialPort opens a native serial port.
func OpenSerialPort(cfg SerialConfig) (SerialPort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device is required")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// SerialTransport reads length-prefixed frames from one serial port. The
// port is a single client; a bridge may forward frames for many devices.
type SerialTransport struct {
	config SerialConfig
	open   func(SerialConfig) (SerialPort, error)

	onMessage    func(Client, *proto.Message)
	onConnect    func(Client) error
	onDisconnect func(Client)

	name        string
	description string
	client      *SerialClient
	cmu         sync.RWMutex

	connected atomic.Bool
	closing   atomic.Bool
}

func NewSerialTransport(config SerialConfig) *SerialTransport {
	return &SerialTransport{config: config, open: OpenSerialPort}
}

// NewSerialTransportWithPort uses an already opened port.
func NewSerialTransportWithPort(config SerialConfig, port SerialPort) *SerialTransport {
	t := NewSerialTransport(config)
	t.open = func(SerialConfig) (SerialPort, error) { return port, nil }
	return t
}

func (t *SerialTransport) Start() error {
	slog.Info("Starting serial transport", "device", t.config.Device, "baud", t.config.Baud)

	if t.onConnect == nil || t.onDisconnect == nil || t.onMessage == nil {
		return errCallbacksMissing
	}

	port, err := t.open(t.config)
	if err != nil {
		return err
	}

	client := NewSerialClient(port, t)
	if err := t.onConnect(client); err != nil {
		port.Close()
		return fmt.Errorf("failed to register serial link: %w", err)
	}

	t.cmu.Lock()
	t.client = client
	t.cmu.Unlock()
	t.connected.Store(true)

	defer func() {
		t.connected.Store(false)
		t.cmu.Lock()
		t.client = nil
		t.cmu.Unlock()
		t.onDisconnect(client)
		port.Close()
		slog.Info("Serial link closed", "device", t.config.Device)
	}()

	reader := bufio.NewReader(port)
	for {
		frame, err := proto.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, proto.ErrEmptyFrame) {
				continue
			}
			if t.closing.Load() || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}

		msg := decodeFrame(frame, client)
		if msg == nil {
			continue
		}
		slog.Debug("Serial message received", "device", msg.IDString(), "packets", msg.Len())
		t.onMessage(client, msg)
	}
}

func (t *SerialTransport) Shutdown() error {
	slog.Info("Shutting down serial transport", "device", t.config.Device)
	t.closing.Store(true)
	t.cmu.RLock()
	client := t.client
	t.cmu.RUnlock()
	if client == nil {
		return nil
	}
	return client.port.Close()
}

func (t *SerialTransport) OnMessage(fn func(Client, *proto.Message)) {
	t.onMessage = fn
}

func (t *SerialTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *SerialTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *SerialTransport) Meta() TransportMetadata {
	clients := make(map[string]Client, 1)
	t.cmu.RLock()
	if t.client != nil {
		clients[t.client.Id] = t.client
	}
	t.cmu.RUnlock()

	return TransportMetadata{
		ID:          transportID("serial", t.config.Device),
		Name:        t.name,
		Description: t.description,
		Protocol:    "serial",
		Address:     fmt.Sprintf("%s@%d", t.config.Device, t.config.Baud),
		Clients:     clients,
		MaxClients:  1,
		Connected:   t.connected.Load(),
	}
}

func (t *SerialTransport) SetName(name string) {
	t.name = name
}

func (t *SerialTransport) SetDescription(description string) {
	t.description = description
}

type SerialClient struct {
	ClientMetadata
	port SerialPort
	wmu  sync.Mutex
}

func NewSerialClient(port SerialPort, t *SerialTransport) *SerialClient {
	return &SerialClient{
		port:           port,
		ClientMetadata: ClientMetadata{Id: generateClientId("serial"), Remote: t.config.Device, Transport: t},
	}
}

func (c *SerialClient) Send(msg *proto.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := proto.WriteMessage(c.port, msg); err != nil {
		return err
	}
	if err := c.port.Flush(); err != nil {
		return err
	}
	slog.Debug("Sent serial message", "to", c.Id, "device", msg.IDString(), "packets", msg.Len())
	return nil
}

func (c *SerialClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}
