package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mbocsi/athub/proto"
)

// pipePort is a SerialPort backed by one end of an in-memory pipe.
type pipePort struct {
	net.Conn
	flushes int
}

func (p *pipePort) Flush() error {
	p.flushes++
	return nil
}

func newPipePort() (*pipePort, net.Conn) {
	a, b := net.Pipe()
	return &pipePort{Conn: a}, b
}

func TestSerialTransport_Meta(t *testing.T) {
	transport := NewSerialTransport(DefaultSerialConfig("/dev/ttyUSB0"))
	transport.SetName("bridge")
	transport.SetDescription("USB bridge")

	meta := transport.Meta()
	if meta.ID != "serial-/dev/ttyUSB0" {
		t.Errorf("Unexpected id %s", meta.ID)
	}
	if meta.Address != "/dev/ttyUSB0@115200" {
		t.Errorf("Unexpected address %s", meta.Address)
	}
	if meta.MaxClients != 1 || meta.Connected || len(meta.Clients) != 0 {
		t.Errorf("Unexpected metadata %+v", meta)
	}
	if meta.Name != "bridge" || meta.Description != "USB bridge" {
		t.Errorf("Unexpected name/description %q/%q", meta.Name, meta.Description)
	}
}

func TestSerialTransport_StartWithoutCallbacks(t *testing.T) {
	port, _ := newPipePort()
	transport := NewSerialTransportWithPort(DefaultSerialConfig("test"), port)
	if err := transport.Start(); err == nil {
		t.Error("Expected error when starting without callbacks")
	}
}

func TestSerialTransport_OpenError(t *testing.T) {
	transport := NewSerialTransport(SerialConfig{})
	transport.OnMessage(func(Client, *proto.Message) {})
	transport.OnConnect(func(Client) error { return nil })
	transport.OnDisconnect(func(Client) {})

	if err := transport.Start(); err == nil {
		t.Error("Expected error opening a port without a device")
	}
}

func TestSerialTransport_ReceiveAndSend(t *testing.T) {
	port, peer := newPipePort()
	defer peer.Close()
	transport := NewSerialTransportWithPort(DefaultSerialConfig("/dev/ttyACM0"), port)

	connected := make(chan Client, 1)
	messages := make(chan *proto.Message, 2)
	disconnected := make(chan Client, 1)
	transport.OnMessage(func(c Client, msg *proto.Message) { messages <- msg })
	transport.OnConnect(func(c Client) error { connected <- c; return nil })
	transport.OnDisconnect(func(c Client) { disconnected <- c })

	done := make(chan error, 1)
	go func() { done <- transport.Start() }()

	var client Client
	select {
	case client = <-connected:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for connect")
	}
	if !strings.HasPrefix(client.Meta().Id, "serial-") || client.Meta().Remote != "/dev/ttyACM0" {
		t.Errorf("Unexpected client metadata %+v", client.Meta())
	}

	in := newReading(t, deviceA, 7)
	if err := proto.WriteMessage(peer, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-messages:
		if !got.Equal(in) {
			t.Error("Expected message to round trip over serial")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
	}

	out := proto.NewMessageFor(in.ID(), proto.UsesChecksum)
	out.AddSwitchOut(true, 3)
	errc := make(chan error, 1)
	go func() { errc <- client.Send(out) }()

	frame, err := proto.ReadFrame(bufio.NewReader(peer))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := proto.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(out) {
		t.Error("Expected output to round trip over serial")
	}
	if port.flushes != 1 {
		t.Errorf("Expected one flush, got %d", port.flushes)
	}

	if err := transport.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serial transport did not stop")
	}
	select {
	case c := <-disconnected:
		if c != client {
			t.Error("Expected disconnect for the serial client")
		}
	default:
		t.Error("Expected disconnect callback")
	}
}

func TestSerialTransport_PeerClosed(t *testing.T) {
	port, peer := newPipePort()
	transport := NewSerialTransportWithPort(DefaultSerialConfig("test"), port)
	transport.OnMessage(func(Client, *proto.Message) {})
	transport.OnConnect(func(Client) error { return nil })
	transport.OnDisconnect(func(Client) {})

	done := make(chan error, 1)
	go func() { done <- transport.Start() }()

	peer.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected EOF to end the transport cleanly, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serial transport did not stop")
	}
}

func TestSerialTransport_ConnectRejected(t *testing.T) {
	port, peer := newPipePort()
	defer peer.Close()
	transport := NewSerialTransportWithPort(DefaultSerialConfig("test"), port)
	transport.OnMessage(func(Client, *proto.Message) {})
	transport.OnConnect(func(Client) error { return errors.New("denied") })
	transport.OnDisconnect(func(Client) {})

	if err := transport.Start(); err == nil {
		t.Error("Expected rejected link to fail Start")
	}
}
