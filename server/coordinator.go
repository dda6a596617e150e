package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbocsi/athub/proto"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceOffline  = errors.New("device offline")
)

// Observer is called after every message the coordinator accepts.
type Observer func(Device, *proto.Message)

type Coordinator struct {
	Registery  *DeviceRegistry
	Broker     *Broker
	MCPServer  Server
	Transports []Transport

	omu       sync.RWMutex
	observers []Observer
}

func NewCoordinator(registery *DeviceRegistry, broker *Broker, mcpServer Server) *Coordinator {
	return &Coordinator{Registery: registery, Broker: broker, MCPServer: mcpServer}
}

func (c *Coordinator) Start(ctx context.Context) error {
	if c.MCPServer != nil {
		go func() {
			if err := c.MCPServer.Start(); err != nil {
				slog.Error("MCP server stopped", "error", err.Error())
			}
		}()
	}
	for _, t := range c.Transports {
		go func(t Transport) {
			if err := t.Start(); err != nil {
				slog.Error("Transport stopped", "transport", t.Meta().ID, "error", err.Error())
			}
		}(t)
	}

	<-ctx.Done()
	slog.Info("Shutting down transports and server")

	for _, t := range c.Transports {
		if err := t.Shutdown(); err != nil {
			slog.Error("There was an error when shutting down transport server", "transport", t.Meta().ID, "error", err.Error())
		}
	}
	return nil
}

func (c *Coordinator) RegisterTransport(t Transport) {
	t.OnMessage(c.Handle)
	t.OnConnect(c.RegisterClient)
	t.OnDisconnect(c.UnregisterClient)
	c.Transports = append(c.Transports, t)
}

// Observe adds fn to the callbacks run after each accepted message.
func (c *Coordinator) Observe(fn Observer) {
	c.omu.Lock()
	defer c.omu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Coordinator) RegisterClient(client Client) error {
	slog.Info("Registered client", "id", client.Meta().Id, "remote", client.Meta().Remote)
	return nil
}

func (c *Coordinator) UnregisterClient(client Client) {
	ids := c.Registery.DetachClient(client)
	c.Broker.UnsubscribeAll(client)
	for _, id := range ids {
		slog.Info("Device offline", "device", id.String(), "client", client.Meta().Id)
	}
}

// Send routes msg to the link the device was last heard on.
func (c *Coordinator) Send(id proto.DeviceID, msg *proto.Message) error {
	if _, ok := c.Registery.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	client, ok := c.Registery.ClientFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceOffline, id)
	}
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", id, err)
	}
	slog.Debug("Message sent to device", "device", id.String(), "client", client.Meta().Id, "packets", msg.Len())
	return nil
}
