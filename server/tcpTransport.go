package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mbocsi/athub/proto"
)

// TCPTransport accepts device links carrying length-prefixed frames.
type TCPTransport struct {
	Addr         string
	listener     net.Listener
	lmu          sync.Mutex
	onMessage    func(Client, *proto.Message)
	onConnect    func(Client) error
	onDisconnect func(Client)

	name        string
	description string
	clients     map[string]Client
	cmu         sync.RWMutex

	maxClients int
	connected  atomic.Bool
}

func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{Addr: addr, maxClients: 16, clients: make(map[string]Client)}
}

func (t *TCPTransport) Start() error {
	slog.Info("Starting tcp server", "addr", t.Addr)

	if t.onConnect == nil || t.onDisconnect == nil || t.onMessage == nil {
		return errCallbacksMissing
	}

	l, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return err
	}
	t.lmu.Lock()
	t.listener = l
	t.lmu.Unlock()
	t.connected.Store(true)
	defer func() {
		l.Close()
		t.connected.Store(false)
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		t.cmu.RLock()
		clientCount := len(t.clients)
		t.cmu.RUnlock()

		if clientCount >= t.maxClients {
			slog.Warn("Max clients reached, rejecting connection", "remote_addr", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go t.handleConnection(conn)
	}
}

// ListenAddr returns the bound address once Start is listening.
func (t *TCPTransport) ListenAddr() net.Addr {
	t.lmu.Lock()
	defer t.lmu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPTransport) handleConnection(c net.Conn) {
	ip := c.RemoteAddr().String()
	slog.Info("Link connected", "addr", ip)

	client := NewTCPClient(c, t)

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		t.cmu.Unlock()

		t.onDisconnect(client)

		c.Close()
		slog.Info("Link disconnected", "addr", ip, "id", client.Id)
	}()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register link", "addr", ip, "error", err.Error())
		return
	}
	t.cmu.Lock()
	t.clients[client.Id] = client
	t.cmu.Unlock()

	reader := bufio.NewReader(c)
	for {
		frame, err := proto.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, proto.ErrEmptyFrame) {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("Connection error", "addr", ip, "error", err)
			}
			return
		}

		msg := decodeFrame(frame, client)
		if msg == nil {
			continue
		}
		slog.Debug("Message received", "device", msg.IDString(), "packets", msg.Len(), "client", client.Id)
		t.onMessage(client, msg)
	}
}

func (t *TCPTransport) Shutdown() error {
	slog.Info("Shutting down tcp server", "addr", t.Addr)
	t.lmu.Lock()
	l := t.listener
	t.lmu.Unlock()
	if l == nil {
		return nil
	}
	err := l.Close()

	t.cmu.RLock()
	for _, c := range t.clients {
		if tc, ok := c.(*TCPClient); ok {
			tc.conn.Close()
		}
	}
	t.cmu.RUnlock()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (t *TCPTransport) OnMessage(fn func(Client, *proto.Message)) {
	t.onMessage = fn
}

func (t *TCPTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *TCPTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *TCPTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	clients := copyClients(t.clients)
	t.cmu.RUnlock()

	addr := t.Addr
	if a := t.ListenAddr(); a != nil {
		addr = a.String()
	}
	return TransportMetadata{
		ID:          transportID("tcp", t.Addr),
		Name:        t.name,
		Description: t.description,
		Protocol:    "tcp",
		Address:     addr,
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected.Load(),
	}
}

func (t *TCPTransport) SetName(name string) {
	t.name = name
}

func (t *TCPTransport) SetMaxClients(n int) {
	t.maxClients = n
}

func (t *TCPTransport) SetDescription(description string) {
	t.description = description
}
