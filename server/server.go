package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type Server interface {
	Start() error
}

// StateStore persists the device registry across restarts.
type StateStore interface {
	LoadDevices() ([]Device, error)
	SaveDevices([]Device) error
}

type GatewayOptions struct {
	MCPServer    Server          // Optional MCPServer to run alongside
	Broker       *Broker         // Optional (defaults to new Broker if nil)
	Registry     *DeviceRegistry // Optional (defaults to new Registry if nil)
	Store        StateStore      // Optional, registry is not persisted if nil
	SaveInterval time.Duration   // Optional periodic save, only with Store
	Advertise    string          // Optional mDNS instance name; empty disables advertising
}

type Gateway struct {
	options     GatewayOptions
	coordinator *Coordinator
}

func NewGateway(opts GatewayOptions) *Gateway {
	if opts.Broker == nil {
		opts.Broker = NewBroker()
	}
	if opts.Registry == nil {
		opts.Registry = NewDeviceRegistry()
	}

	coordinator := NewCoordinator(opts.Registry, opts.Broker, opts.MCPServer)

	return &Gateway{
		options:     opts,
		coordinator: coordinator,
	}
}

func (s *Gateway) RegisterTransport(t Transport) {
	s.coordinator.RegisterTransport(t)
}

func (s *Gateway) Coordinator() *Coordinator { return s.coordinator }
func (s *Gateway) GetRegistry() *DeviceRegistry { return s.options.Registry }
func (s *Gateway) GetBroker() *Broker { return s.options.Broker }
func (s *Gateway) GetTransports() []Transport { return s.coordinator.Transports }

// Start runs all transports until ctx is cancelled or the process receives
// SIGINT/SIGTERM.
func (s *Gateway) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.restore()

	if s.options.Advertise != "" {
		ads := s.advertise()
		defer func() {
			for _, ad := range ads {
				ad.Shutdown()
			}
		}()
	}

	if s.options.Store != nil && s.options.SaveInterval > 0 {
		go s.saveLoop(ctx)
	}

	err := s.coordinator.Start(ctx)
	s.save()
	return err
}

func (s *Gateway) advertise() []*Advertisement {
	var ads []*Advertisement
	for _, t := range s.coordinator.Transports {
		ad, err := Advertise(s.options.Advertise, t)
		if err != nil {
			slog.Warn("Could not advertise transport", "transport", t.Meta().ID, "error", err)
			continue
		}
		if ad != nil {
			ads = append(ads, ad)
		}
	}
	return ads
}

func (s *Gateway) restore() {
	if s.options.Store == nil {
		return
	}
	devices, err := s.options.Store.LoadDevices()
	if err != nil {
		slog.Error("Failed to load saved devices", "error", err)
		return
	}
	n := s.options.Registry.Restore(devices)
	slog.Info("Restored devices", "count", n)
}

func (s *Gateway) save() {
	if s.options.Store == nil {
		return
	}
	devices := s.options.Registry.List()
	if err := s.options.Store.SaveDevices(devices); err != nil {
		slog.Error("Failed to save devices", "error", err)
		return
	}
	slog.Debug("Saved devices", "count", len(devices))
}

func (s *Gateway) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.options.SaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.save()
		}
	}
}
