package web

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

var errNotRegistered = errors.New("client is not registered with the in-memory transport")

// InMemoryTransport implements the Transport interface for in-process
// clients such as the web UI. Frames injected over HTTP enter the gateway
// through it.
type InMemoryTransport struct {
	onMessage    func(server.Client, *proto.Message)
	onConnect    func(server.Client) error
	onDisconnect func(server.Client)

	name        string
	description string
	clients     map[string]server.Client
	cmu         sync.RWMutex

	maxClients int
	connected  atomic.Bool
}

func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		name:        "In-Memory Transport",
		description: "In-memory transport for web UI clients",
		clients:     make(map[string]server.Client),
		maxClients:  4,
	}
}

func (wt *InMemoryTransport) Start() error {
	slog.Info("Starting in-memory transport", "addr", "in-memory")
	if wt.onConnect == nil || wt.onDisconnect == nil || wt.onMessage == nil {
		return errors.New("in-memory transport started outside of a coordinator")
	}
	wt.connected.Store(true)
	return nil
}

func (wt *InMemoryTransport) OnMessage(handler func(server.Client, *proto.Message)) {
	wt.onMessage = handler
}

func (wt *InMemoryTransport) OnConnect(handler func(server.Client) error) {
	wt.onConnect = handler
}

func (wt *InMemoryTransport) OnDisconnect(handler func(server.Client)) {
	wt.onDisconnect = handler
}

func (wt *InMemoryTransport) Shutdown() error {
	wt.cmu.Lock()
	clients := wt.clients
	wt.clients = make(map[string]server.Client)
	wt.cmu.Unlock()

	if wt.onDisconnect != nil {
		for _, client := range clients {
			wt.onDisconnect(client)
		}
	}
	wt.connected.Store(false)

	slog.Info("In-memory transport shut down")
	return nil
}

func (wt *InMemoryTransport) Meta() server.TransportMetadata {
	wt.cmu.RLock()
	clients := make(map[string]server.Client, len(wt.clients))
	for id, c := range wt.clients {
		clients[id] = c
	}
	wt.cmu.RUnlock()
	return server.TransportMetadata{
		ID:          "memory",
		Name:        wt.name,
		Description: wt.description,
		Protocol:    "memory",
		Address:     "in-process",
		Clients:     clients,
		MaxClients:  wt.maxClients,
		Connected:   wt.connected.Load(),
	}
}

func (wt *InMemoryTransport) SetName(name string) {
	wt.name = name
}

func (wt *InMemoryTransport) SetDescription(description string) {
	wt.description = description
}

// RegisterClient registers any client with the transport
func (wt *InMemoryTransport) RegisterClient(client server.Client) error {
	if wt.onConnect == nil {
		return errors.New("in-memory transport is not registered with a coordinator")
	}

	wt.cmu.Lock()
	if len(wt.clients) >= wt.maxClients {
		wt.cmu.Unlock()
		return errors.New("in-memory transport is full")
	}
	client.Meta().Transport = wt
	wt.clients[client.Meta().Id] = client
	wt.cmu.Unlock()

	if err := wt.onConnect(client); err != nil {
		wt.cmu.Lock()
		delete(wt.clients, client.Meta().Id)
		wt.cmu.Unlock()
		return err
	}
	return nil
}

// UnregisterClient removes a client and tells the coordinator it is gone
func (wt *InMemoryTransport) UnregisterClient(clientID string) {
	wt.cmu.Lock()
	client, exists := wt.clients[clientID]
	if exists {
		delete(wt.clients, clientID)
	}
	wt.cmu.Unlock()

	if exists && wt.onDisconnect != nil {
		wt.onDisconnect(client)
	}
}

// Inject hands msg to the coordinator as if client had received it from a
// device.
func (wt *InMemoryTransport) Inject(client server.Client, msg *proto.Message) error {
	wt.cmu.RLock()
	_, ok := wt.clients[client.Meta().Id]
	wt.cmu.RUnlock()
	if !ok {
		return errNotRegistered
	}
	wt.onMessage(client, msg)
	return nil
}
