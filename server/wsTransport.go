package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/athub/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// WSTransport accepts device links over WebSocket. Each binary message
// carries exactly one frame.
type WSTransport struct {
	Addr         string
	server       *http.Server
	listener     net.Listener
	smu          sync.Mutex
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

func NewWSTransport(addr string) *WSTransport {
	return &WSTransport{
		Addr:       addr,
		maxClients: 16,
		clients:    make(map[string]Client),
	}
}

func (t *WSTransport) Start() error {
	slog.Info("Starting WebSocket server", "addr", t.Addr)

	if t.onConnect == nil || t.onDisconnect == nil || t.onMessage == nil {
		return errCallbacksMissing
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleWebSocket)

	l, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return err
	}

	t.smu.Lock()
	t.listener = l
	t.server = &http.Server{Handler: mux}
	srv := t.server
	t.smu.Unlock()

	t.connected.Store(true)
	defer t.connected.Store(false)

	err = srv.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr returns the bound address once Start is listening.
func (t *WSTransport) ListenAddr() net.Addr {
	t.smu.Lock()
	defer t.smu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *WSTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	t.cmu.RLock()
	clientCount := len(t.clients)
	t.cmu.RUnlock()

	if clientCount >= t.maxClients {
		slog.Warn("Max clients reached, rejecting connection", "remote_addr", r.RemoteAddr)
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	go t.handleConnection(conn, r.RemoteAddr)
}

func (t *WSTransport) handleConnection(conn *websocket.Conn, remoteAddr string) {
	slog.Info("WebSocket link connected", "addr", remoteAddr)

	client := NewWSClient(conn, remoteAddr, t)

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		t.cmu.Unlock()

		t.onDisconnect(client)

		conn.Close()
		slog.Info("WebSocket link disconnected", "addr", remoteAddr, "id", client.Id)
	}()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register WebSocket link", "addr", remoteAddr, "error", err.Error())
		return
	}

	t.cmu.Lock()
	t.clients[client.Id] = client
	t.cmu.Unlock()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket connection error", "addr", remoteAddr, "error", err)
			}
			break
		}
		if kind != websocket.BinaryMessage {
			slog.Warn("Ignoring non-binary WebSocket message", "addr", remoteAddr, "size", len(data))
			continue
		}

		msg := decodeFrame(data, client)
		if msg == nil {
			continue
		}
		slog.Debug("WebSocket message received", "device", msg.IDString(), "packets", msg.Len(), "client", client.Id)
		t.onMessage(client, msg)
	}
}

func (t *WSTransport) Shutdown() error {
	slog.Info("Shutting down WebSocket server", "addr", t.Addr)
	t.smu.Lock()
	srv := t.server
	t.smu.Unlock()

	t.cmu.RLock()
	for _, c := range t.clients {
		if wc, ok := c.(*WSClient); ok {
			wc.conn.Close()
		}
	}
	t.cmu.RUnlock()

	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (t *WSTransport) OnMessage(fn func(Client, *proto.Message)) {
	t.onMessage = fn
}

func (t *WSTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *WSTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *WSTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	clients := copyClients(t.clients)
	t.cmu.RUnlock()

	addr := t.Addr
	if a := t.ListenAddr(); a != nil {
		addr = a.String()
	}
	return TransportMetadata{
		ID:          transportID("ws", t.Addr),
		Name:        t.name,
		Description: t.description,
		Protocol:    "websocket",
		Address:     addr,
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected.Load(),
	}
}

func (t *WSTransport) SetName(name string) {
	t.name = name
}

func (t *WSTransport) SetMaxClients(n int) {
	t.maxClients = n
}

func (t *WSTransport) SetDescription(description string) {
	t.description = description
}
