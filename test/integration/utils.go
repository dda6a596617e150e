package integration

import (
	"context"
	"testing"
	"time"

	"github.com/mbocsi/athub/client"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
)

// testGateway is a full gateway on ephemeral TCP and WebSocket ports.
type testGateway struct {
	gateway  *server.Gateway
	services *services.ServiceContainer
	tcp      *server.TCPTransport
	ws       *server.WSTransport
	cancel   context.CancelFunc
	done     chan error
}

func startGateway(t *testing.T, store server.StateStore) *testGateway {
	t.Helper()
	g := &testGateway{
		gateway: server.NewGateway(server.GatewayOptions{Store: store}),
		tcp:     server.NewTCPTransport("127.0.0.1:0"),
		ws:      server.NewWSTransport("127.0.0.1:0"),
		done:    make(chan error, 1),
	}
	g.gateway.RegisterTransport(g.tcp)
	g.gateway.RegisterTransport(g.ws)
	g.services = services.NewServiceManager(g.gateway.Coordinator(), time.Second).GetServices()

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go func() { g.done <- g.gateway.Start(ctx) }()
	t.Cleanup(func() { g.stop(t) })

	waitFor(t, "listeners", func() bool {
		return g.tcp.ListenAddr() != nil && g.ws.ListenAddr() != nil
	})
	return g
}

func (g *testGateway) tcpAddr() string { return g.tcp.ListenAddr().String() }

func (g *testGateway) wsURL() string { return "ws://" + g.ws.ListenAddr().String() + "/" }

// stop shuts the gateway down and waits for its final save. Safe to call
// more than once.
func (g *testGateway) stop(t *testing.T) {
	t.Helper()
	g.cancel()
	select {
	case err, ok := <-g.done:
		if ok && err != nil {
			t.Errorf("Gateway returned %v", err)
		}
		close(g.done)
	case <-time.After(5 * time.Second):
		t.Fatal("Gateway did not shut down")
	}
}

// runClient connects c and handles gateway messages until the test ends.
func runClient(t *testing.T, c *client.Client, addr string) {
	t.Helper()
	if err := c.Connect(addr); err != nil {
		t.Fatalf("Connect %s failed: %v", c.Name, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
