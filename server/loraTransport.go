package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mbocsi/athub/proto"
)

// ErrRadioStopped is returned by LoRaRadio.Receive once the radio is stopped.
var ErrRadioStopped = errors.New("radio stopped")

// LoRaConfig contains basic LoRa radio configuration
type LoRaConfig struct {
	Frequency       uint32 // Hz (e.g., 868000000 for 868MHz)
	Bandwidth       uint32 // Hz (e.g., 125000 for 125kHz)
	SpreadingFactor uint8  // 7-12
	CodingRate      uint8  // 5-8
	TxPower         uint8  // dBm
}

// LoRaMessage represents a received LoRa packet with metadata
type LoRaMessage struct {
	DeviceAddress []byte
	Data          []byte
	RSSI          int
	SNR           float64
}

// LoRaRadio defines the interface for LoRa radio hardware
type LoRaRadio interface {
	Start() error
	Stop() error
	Send(address []byte, data []byte) error
	Receive() (LoRaMessage, error)
}

// LoRaTransport bridges radio nodes to the gateway. Every radio address is
// one client; the frame inside the packet carries the device id.
type LoRaTransport struct {
	config LoRaConfig
	radio  LoRaRadio

	onMessage    func(Client, *proto.Message)
	onConnect    func(Client) error
	onDisconnect func(Client)

	name        string
	description string
	clients     map[string]Client
	cmu         sync.RWMutex

	maxClients int
	connected  atomic.Bool
	running    atomic.Bool
}

func NewLoRaTransport(config LoRaConfig, radio LoRaRadio) *LoRaTransport {
	return &LoRaTransport{
		config:     config,
		radio:      radio,
		maxClients: 50, // LoRa can handle many low-bandwidth devices
		clients:    make(map[string]Client),
	}
}

func (t *LoRaTransport) Start() error {
	slog.Info("Starting LoRa transport", "frequency", t.config.Frequency)

	if t.onConnect == nil || t.onDisconnect == nil || t.onMessage == nil {
		return errCallbacksMissing
	}

	if err := t.radio.Start(); err != nil {
		return fmt.Errorf("failed to start LoRa radio: %w", err)
	}

	t.connected.Store(true)
	t.running.Store(true)

	t.messageLoop()
	return nil
}

func (t *LoRaTransport) messageLoop() {
	for t.running.Load() {
		msg, err := t.radio.Receive()
		if err != nil {
			if errors.Is(err, ErrRadioStopped) {
				return
			}
			continue
		}

		t.handleMessage(msg)
	}
}

func (t *LoRaTransport) handleMessage(loraMsg LoRaMessage) {
	addr := fmt.Sprintf("%x", loraMsg.DeviceAddress)

	t.cmu.RLock()
	client, exists := t.clients[addr]
	count := len(t.clients)
	t.cmu.RUnlock()

	if !exists {
		if count >= t.maxClients {
			slog.Warn("Max clients reached, ignoring LoRa node", "address", addr)
			return
		}

		lc := NewLoRaClient(loraMsg.DeviceAddress, loraMsg.RSSI, loraMsg.SNR, t)
		if err := t.onConnect(lc); err != nil {
			slog.Error("Failed to register LoRa node", "address", addr, "error", err)
			return
		}

		t.cmu.Lock()
		t.clients[addr] = lc
		t.cmu.Unlock()
		client = lc

		slog.Info("New LoRa node", "address", addr, "id", lc.Id)
	} else if lc, ok := client.(*LoRaClient); ok {
		lc.updateSignalQuality(loraMsg.RSSI, loraMsg.SNR)
	}

	msg := decodeFrame(loraMsg.Data, client)
	if msg == nil {
		return
	}
	slog.Debug("LoRa message received", "device", msg.IDString(), "packets", msg.Len(), "rssi", loraMsg.RSSI, "snr", loraMsg.SNR)
	t.onMessage(client, msg)
}

// Forget drops a radio node. LoRa has no connection teardown, so this is the
// only way a LoRa client disconnects.
func (t *LoRaTransport) Forget(address []byte) {
	addr := fmt.Sprintf("%x", address)
	t.cmu.Lock()
	client, ok := t.clients[addr]
	delete(t.clients, addr)
	t.cmu.Unlock()
	if ok {
		t.onDisconnect(client)
	}
}

func (t *LoRaTransport) Shutdown() error {
	slog.Info("Shutting down LoRa transport")
	t.running.Store(false)
	t.connected.Store(false)

	if t.radio != nil {
		return t.radio.Stop()
	}
	return nil
}

func (t *LoRaTransport) OnMessage(fn func(Client, *proto.Message)) {
	t.onMessage = fn
}

func (t *LoRaTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *LoRaTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *LoRaTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	clients := copyClients(t.clients)
	t.cmu.RUnlock()

	return TransportMetadata{
		ID:          fmt.Sprintf("lora-%d", t.config.Frequency),
		Name:        t.name,
		Description: t.description,
		Protocol:    "lora",
		Address:     fmt.Sprintf("%.1fMHz", float64(t.config.Frequency)/1000000),
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected.Load(),
	}
}

func (t *LoRaTransport) SetName(name string) {
	t.name = name
}

func (t *LoRaTransport) SetMaxClients(n int) {
	t.maxClients = n
}

func (t *LoRaTransport) SetDescription(description string) {
	t.description = description
}
