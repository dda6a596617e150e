package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbocsi/athub/proto"
)

// LoRaClient is one radio address heard by the transport.
type LoRaClient struct {
	ClientMetadata
	radio   LoRaRadio
	address []byte
	rssi    int
	snr     float64
	mu      sync.RWMutex
}

func NewLoRaClient(address []byte, rssi int, snr float64, t *LoRaTransport) *LoRaClient {
	addr := append([]byte(nil), address...)
	return &LoRaClient{
		address: addr,
		rssi:    rssi,
		snr:     snr,
		radio:   t.radio,
		ClientMetadata: ClientMetadata{
			Id:        generateClientId("lora"),
			Remote:    fmt.Sprintf("%x", addr),
			Transport: t,
		},
	}
}

func (c *LoRaClient) Send(msg *proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.radio.Send(c.address, data); err != nil {
		return fmt.Errorf("failed to send LoRa message: %w", err)
	}

	rssi, _ := c.SignalQuality()
	slog.Debug("Sent LoRa message", "to", c.Id, "device", msg.IDString(), "size", len(data), "rssi", rssi)
	return nil
}

func (c *LoRaClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}

// Address returns the LoRa node address
func (c *LoRaClient) Address() []byte {
	return c.address
}

// SignalQuality returns the RSSI and SNR of the last packet heard
func (c *LoRaClient) SignalQuality() (int, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rssi, c.snr
}

func (c *LoRaClient) updateSignalQuality(rssi int, snr float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rssi = rssi
	c.snr = snr
}
