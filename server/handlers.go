package server

import (
	"log/slog"

	"github.com/mbocsi/athub/proto"
)

func (c *Coordinator) Handle(client Client, msg *proto.Message) {
	if msg.ID().IsZero() {
		slog.Warn("Dropping message without device id", "client", client.Meta().Id)
		return
	}

	device, isNew := c.Registery.Observe(client, msg)
	if isNew {
		slog.Info("New device", "device", device.ID.String(), "bits", device.Bits.String(), "client", client.Meta().Id)
	}

	if msg.Len() == 0 {
		c.handleHeartbeat(device)
	} else {
		c.handleData(msg)
	}

	c.omu.RLock()
	observers := c.observers
	c.omu.RUnlock()
	for _, fn := range observers {
		fn(device, msg)
	}
}

// ---------- data ---------- //

func (c *Coordinator) handleData(msg *proto.Message) {
	for _, p := range msg.Packets() {
		if !p.Type.IsInput() {
			slog.Debug("Device echoed output packet", "device", msg.IDString(), "channel", p.Channel, "type", p.Type.String())
		}
	}
	c.Broker.Publish(msg)

	slog.Debug("Data forwarded",
		"device", msg.IDString(),
		"packets", msg.Len(),
		"bits", msg.DeviceBits().String(),
	)
}

// ---------- heartbeat ---------- //

func (c *Coordinator) handleHeartbeat(device Device) {
	slog.Debug("Heartbeat", "device", device.ID.String(), "messages", device.Messages)
}
