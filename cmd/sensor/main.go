// Command sensor is a simulated climate node: it reports temperature and
// humidity to an athub gateway, on a timer or only when polled.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mbocsi/athub/client"
	"github.com/mbocsi/athub/proto"
)

var (
	addr      string
	deviceID  string
	transport string
	interval  time.Duration
	passive   bool
	discover  bool
)

func init() {
	flag.StringVar(&addr, "addr", "localhost:8888", "Gateway address (host:port, or ws:// URL with -transport ws)")
	flag.StringVar(&deviceID, "id", "a1:02:ff:00:3c:9b", "Device id as six hex bytes")
	flag.StringVar(&transport, "transport", "tcp", "Link to the gateway: tcp or ws")
	flag.DurationVar(&interval, "interval", 5*time.Second, "Report interval")
	flag.BoolVar(&passive, "passive", false, "Only report when the gateway polls")
	flag.BoolVar(&discover, "discover", false, "Find the gateway with mDNS instead of -addr")
}

type climate struct {
	mu       sync.Mutex
	temp     float32
	humidity float32
}

// step drifts the readings a little each call.
func (c *climate) step() {
	c.temp += (rand.Float32() - 0.5) * 0.2
	c.humidity += (rand.Float32() - 0.5) * 0.5
	c.humidity = min(max(c.humidity, 0), 100)
}

func (c *climate) fill(msg *proto.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()
	if err := msg.AddCelsius(c.temp, 1); err != nil {
		return err
	}
	return msg.AddPercent(c.humidity, 2)
}

func main() {
	flag.Parse()

	id, err := proto.ParseDeviceID(deviceID)
	if err != nil {
		slog.Error("Invalid device id", "id", deviceID, "error", err.Error())
		os.Exit(1)
	}

	var link client.Transport
	switch transport {
	case "tcp":
		link = client.NewTCPTransport()
	case "ws":
		link = client.NewWebSocketTransport()
	default:
		slog.Error("Unknown transport", "transport", transport)
		os.Exit(1)
	}

	if discover {
		var svc *client.DiscoveredService
		if transport == "ws" {
			svc, err = client.DiscoverWebSocketService(5 * time.Second)
		} else {
			svc, err = client.DiscoverTCPService(5 * time.Second)
		}
		if err != nil {
			slog.Error("Gateway discovery failed", "error", err.Error())
			os.Exit(1)
		}
		addr = svc.Addr()
	}

	bits := proto.UsesChecksum
	if passive {
		bits |= proto.IsPassive
	}
	c := client.NewClient("sensor", id, bits, link)
	if err := c.Connect(addr); err != nil {
		slog.Error("Could not connect to gateway", "addr", addr, "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readings := &climate{temp: 20, humidity: 45}
	c.OnPoll(readings.fill)
	if !passive {
		go c.Report(ctx, interval, readings.fill)
	}

	if err := c.Run(ctx); err != nil {
		slog.Error("Gateway link failed", "error", err.Error())
		os.Exit(1)
	}
}
