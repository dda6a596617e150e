package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/athub/proto"
)

// Client is the node side of a gateway link: it reports readings under its
// device id and applies the outputs the gateway sends it.
type Client struct {
	Name      string
	id        proto.DeviceID
	bits      proto.DeviceBits
	transport Transport
	connected atomic.Bool

	// Handlers
	handlerMu      sync.RWMutex
	outputHandlers map[uint8]func(proto.DataPacket) error
	pollHandler    func(*proto.Message) error
}

func NewClient(name string, id proto.DeviceID, bits proto.DeviceBits, t Transport) *Client {
	return &Client{
		Name:           name,
		id:             id,
		bits:           bits,
		transport:      t,
		outputHandlers: make(map[uint8]func(proto.DataPacket) error),
	}
}

func (c *Client) ID() proto.DeviceID { return c.id }

func (c *Client) Bits() proto.DeviceBits { return c.bits }

func (c *Client) Connected() bool { return c.connected.Load() }

// Connect opens the link and announces the node with an empty message so the
// gateway can route to it before its first report.
func (c *Client) Connect(addr string) error {
	if err := c.transport.Connect(addr); err != nil {
		return err
	}
	c.connected.Store(true)
	slog.Info("Connected to gateway", "name", c.Name, "device", c.id.String(), "addr", addr, "bits", c.bits.String())

	if err := c.transport.Send(proto.NewMessageFor(c.id, c.bits)); err != nil {
		c.connected.Store(false)
		c.transport.Close()
		return fmt.Errorf("announce: %w", err)
	}
	return nil
}

// Publish builds a message with fill and sends it to the gateway.
func (c *Client) Publish(fill func(*proto.Message) error) error {
	if !c.connected.Load() {
		return errors.New("client is not connected")
	}
	msg := proto.NewMessageFor(c.id, c.bits)
	if fill != nil {
		if err := fill(msg); err != nil {
			return err
		}
	}
	if err := c.transport.Send(msg); err != nil {
		return err
	}
	slog.Debug("Published message", "device", c.id.String(), "packets", msg.Len())
	return nil
}

// OnOutput registers the handler for output packets addressed to channel.
func (c *Client) OnOutput(channel uint8, handler func(proto.DataPacket) error) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.outputHandlers[channel] = handler
}

// OnPoll sets how the node answers a poll. Without it a poll is answered
// with an empty message.
func (c *Client) OnPoll(fill func(*proto.Message) error) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.pollHandler = fill
}

// Report publishes fill every interval until ctx is done.
func (c *Client) Report(ctx context.Context, interval time.Duration, fill func(*proto.Message) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Publish(fill); err != nil {
				slog.Warn("Failed to publish report", "device", c.id.String(), "error", err.Error())
			}
		}
	}
}

// Run handles messages from the gateway until ctx is done or the link
// fails. It closes the transport on return.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.transport.Close()
	})
	defer stop()
	defer func() {
		c.connected.Store(false)
		c.transport.Close()
	}()

	for {
		msg, err := c.transport.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrBadFrame) {
				slog.Warn("Dropping undecodable frame", "device", c.id.String(), "error", err.Error())
				continue
			}
			return err
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg *proto.Message) {
	slog.Debug("Message Received", "device", msg.IDString(), "packets", msg.Len())

	if msg.ID() != c.id {
		slog.Warn("Ignoring message for another device", "device", msg.IDString(), "self", c.id.String())
		return
	}

	if msg.Len() == 0 {
		c.handlerMu.RLock()
		fill := c.pollHandler
		c.handlerMu.RUnlock()
		if err := c.Publish(fill); err != nil {
			slog.Warn("An error occured when answering poll", "device", c.id.String(), "error", err.Error())
		}
		return
	}

	for _, p := range msg.Packets() {
		if p.Type.IsInput() {
			slog.Warn("Ignoring input packet from gateway", "channel", p.Channel, "type", p.Type.String())
			continue
		}
		c.handlerMu.RLock()
		handler := c.outputHandlers[p.Channel]
		c.handlerMu.RUnlock()
		if handler == nil {
			slog.Warn("Channel not found in output handlers: Ignoring packet", "channel", p.Channel)
			continue
		}
		if err := handler(p); err != nil {
			slog.Warn("An error occured in outputHandler", "channel", p.Channel, "error", err.Error())
		}
	}
}

// Close ends the link.
func (c *Client) Close() error {
	c.connected.Store(false)
	return c.transport.Close()
}
