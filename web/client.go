package web

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
)

// outboxSize is how many outbound frames the web link keeps for inspection.
const outboxSize = 64

// OutboundFrame is a frame the gateway sent to a device homed on the web link.
type OutboundFrame struct {
	Device  string    `json:"device"`
	Packets int       `json:"packets"`
	Frame   string    `json:"frame"`
	Time    time.Time `json:"time"`
}

// WebClient serves the HTTP API and UI. It is also a gateway client: devices
// whose frames are injected over HTTP are homed on it, and messages the
// gateway sends them are kept in an outbox.
type WebClient struct {
	services  *services.ServiceContainer
	transport *InMemoryTransport
	templates *Templates
	server.ClientMetadata

	omu    sync.Mutex
	outbox []OutboundFrame

	smu     sync.Mutex
	http    *http.Server
	closing chan struct{}
	once    sync.Once
}

// NewWebClient creates a new web client that can serve the UI and act as a client
func NewWebClient(serviceContainer *services.ServiceContainer, transport *InMemoryTransport) *WebClient {
	return &WebClient{
		services:  serviceContainer,
		transport: transport,
		templates: NewTemplates(templateFS),
		closing:   make(chan struct{}),
		ClientMetadata: server.ClientMetadata{
			Id:   "web-ui",
			Name: "Web UI Client",
		},
	}
}

// Meta returns the client metadata (implements Client interface)
func (w *WebClient) Meta() *server.ClientMetadata {
	return &w.ClientMetadata
}

// Send records a message the gateway routed to a device homed on the web
// link (implements Client interface)
func (w *WebClient) Send(msg *proto.Message) error {
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	w.omu.Lock()
	defer w.omu.Unlock()
	if len(w.outbox) == outboxSize {
		copy(w.outbox, w.outbox[1:])
		w.outbox = w.outbox[:outboxSize-1]
	}
	w.outbox = append(w.outbox, OutboundFrame{
		Device:  msg.IDString(),
		Packets: msg.Len(),
		Frame:   hex.EncodeToString(frame),
		Time:    time.Now(),
	})
	slog.Debug("WebClient queued frame", "device", msg.IDString(), "size", len(frame))
	return nil
}

// Outbox returns the queued outbound frames, oldest first
func (w *WebClient) Outbox() []OutboundFrame {
	w.omu.Lock()
	defer w.omu.Unlock()
	return append([]OutboundFrame(nil), w.outbox...)
}

// InjectFrame decodes a frame and hands it to the gateway as if a device had
// sent it over this link
func (w *WebClient) InjectFrame(frame []byte) (*proto.Message, error) {
	msg, err := proto.Decode(frame)
	if err != nil {
		return nil, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Invalid frame",
			Cause:   err,
		}
	}
	if msg.ID().IsZero() {
		return nil, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Frame has no device id",
		}
	}
	if err := w.transport.Inject(w, msg); err != nil {
		return nil, services.ServiceError{
			Code:    services.ErrCodeUnavailable,
			Message: "Web link is not connected",
			Cause:   err,
		}
	}
	return msg, nil
}

// RenameDevice is an elevated function that renames a device
func (w *WebClient) RenameDevice(deviceID, newName string) error {
	return w.services.Device.RenameDevice(deviceID, newName)
}

// Routes returns the HTTP routes for the web UI and JSON API
func (w *WebClient) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", w.HandleHome)
	r.Get("/devices", w.HandleDevices)
	r.Get("/devices/{id}", w.HandleDeviceDetail)
	r.Get("/transports", w.HandleTransports)

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", w.HandleListDevices)
		r.Get("/devices/{id}", w.HandleGetDevice)
		r.Delete("/devices/{id}", w.HandleForgetDevice)
		r.Get("/devices/{id}/readings", w.HandleGetReadings)
		r.Post("/devices/{id}/rename", w.HandleDeviceRename)
		r.Post("/devices/{id}/outputs", w.HandleSetOutputs)
		r.Post("/devices/{id}/poll", w.HandlePollDevice)
		r.Get("/devices/{id}/events", w.HandleDeviceEvents)
		r.Get("/events", w.HandleDeviceEvents)
		r.Get("/transports", w.HandleListTransports)
		r.Get("/transports/{i}", w.HandleGetTransport)
		r.Get("/stats", w.HandleStats)
		r.Get("/frames", w.HandleListFrames)
		r.Post("/frames", w.HandleInjectFrame)
	})
	return r
}

// Start serves the UI on addr until Shutdown is called
func (w *WebClient) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	w.smu.Lock()
	w.http = srv
	w.smu.Unlock()

	slog.Info("Starting web server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends live event streams and stops the HTTP server, waiting up to
// five seconds for other requests
func (w *WebClient) Shutdown() error {
	w.once.Do(func() { close(w.closing) })

	w.smu.Lock()
	srv := w.http
	w.smu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
