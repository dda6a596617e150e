package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mbocsi/athub/proto"
)

var errCallbacksMissing = errors.New("the OnConnect, OnDisconnect, or OnMessage function is not defined; this transport is likely being called outside of the server coordinator")

type Transport interface {
	Start() error
	OnMessage(func(Client, *proto.Message))
	OnConnect(func(Client) error)
	OnDisconnect(func(Client))
	Shutdown() error
	Meta() TransportMetadata
	SetName(name string)
	SetDescription(description string)
}

type TransportMetadata struct {
	ID          string // Stable identifier, e.g. "tcp-0.0.0.0:8888"
	Name        string // Human-friendly name, e.g., "TCP Server", "LoRa Gateway"
	Protocol    string // Protocol name, e.g., "tcp", "websocket", "lora", "serial"
	Address     string // Bind address, port or frequency
	Description string // Optional, short purpose/use case

	Clients    map[string]Client // Current active clients
	MaxClients int               // Max allowed clients (if applicable, else 0)
	Connected  bool              // Whether the transport is currently running/bound
}

// ClientMetadata describes one link endpoint. Several devices may sit behind
// a single client, e.g. a serial bridge.
type ClientMetadata struct {
	Id        string
	Name      string
	Remote    string
	Transport Transport
	Mu        sync.RWMutex
}

type Client interface {
	Send(*proto.Message) error
	Meta() *ClientMetadata
}

func generateClientId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// decodeFrame turns one received frame into a message. Bad frames are logged
// and reported as nil so the caller can keep the link up.
func decodeFrame(data []byte, client Client) *proto.Message {
	msg, err := proto.Decode(data)
	if err != nil {
		slog.Warn("Dropping undecodable frame", "client", client.Meta().Id, "size", len(data), "error", err)
		return nil
	}
	if msg.DeviceBits().Has(proto.EncryptsData) {
		slog.Debug("Frame payload marked encrypted", "device", msg.IDString())
	}
	return msg
}

func copyClients(clients map[string]Client) map[string]Client {
	out := make(map[string]Client, len(clients))
	for id, c := range clients {
		out[id] = c
	}
	return out
}

func transportID(protocol, addr string) string {
	return fmt.Sprintf("%s-%s", protocol, addr)
}
