// Command actuator is a simulated relay and dimmer node. It applies the
// outputs the gateway sends and reports the resulting state back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mbocsi/athub/client"
	"github.com/mbocsi/athub/proto"
)

const (
	relayChannel  uint8 = 1
	dimmerChannel uint8 = 2
)

var (
	addr     string
	deviceID string
)

func init() {
	flag.StringVar(&addr, "addr", "ws://localhost:8889/", "Gateway WebSocket URL")
	flag.StringVar(&deviceID, "id", "a1:02:ff:00:7e:01", "Device id as six hex bytes")
}

type state struct {
	mu         sync.Mutex
	relay      bool
	brightness float32
}

func (s *state) fill(msg *proto.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := msg.AddSwitchIn(s.relay, relayChannel); err != nil {
		return err
	}
	return msg.AddFloatIn(s.brightness, dimmerChannel, proto.UnitPercent)
}

func main() {
	flag.Parse()

	id, err := proto.ParseDeviceID(deviceID)
	if err != nil {
		slog.Error("Invalid device id", "id", deviceID, "error", err.Error())
		os.Exit(1)
	}

	c := client.NewClient("actuator", id, proto.UsesChecksum, client.NewWebSocketTransport())
	st := &state{}

	c.OnOutput(relayChannel, func(p proto.DataPacket) error {
		if p.Type != proto.TypeSwitchOut {
			return fmt.Errorf("relay expects switch_out, got %s", p.Type)
		}
		st.mu.Lock()
		st.relay = p.Switch()
		st.mu.Unlock()
		slog.Info("Relay switched", "on", p.Switch())
		return c.Publish(st.fill)
	})
	c.OnOutput(dimmerChannel, func(p proto.DataPacket) error {
		if p.Type != proto.TypeAnalogOut || p.Unit != proto.UnitPercent {
			return fmt.Errorf("dimmer expects analog_out in percent, got %s %s", p.Type, p.Unit)
		}
		level := p.Float()
		if level < 0 || level > 100 {
			return fmt.Errorf("brightness %.1f out of range 0-100", level)
		}
		st.mu.Lock()
		st.brightness = level
		st.mu.Unlock()
		slog.Info("Setting brightness", "percent", level)
		return c.Publish(st.fill)
	})
	c.OnPoll(st.fill)

	if err := c.Connect(addr); err != nil {
		slog.Error("Could not connect to gateway", "addr", addr, "error", err.Error())
		os.Exit(1)
	}
	if err := c.Publish(st.fill); err != nil {
		slog.Warn("Initial report failed", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		slog.Error("Gateway link failed", "error", err.Error())
		os.Exit(1)
	}
}
