package services

import (
	"context"
	"time"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// DeviceService handles device-related operations
type DeviceService interface {
	// Device management
	ListDevices() ([]DeviceInfo, error)
	GetDevice(id string) (*DeviceInfo, error)
	RenameDevice(id, name string) error
	ForgetDevice(id string) error

	// Device state
	GetReadings(id string) ([]ReadingInfo, error)
	IsDeviceConnected(id string) (bool, error)
}

// OutputService drives actuator channels on a device.
type OutputService interface {
	SetSwitch(id string, channel uint8, on bool) error
	SetLong(id string, channel uint8, unit proto.Unit, value int32) error
	SetFloat(id string, channel uint8, unit proto.Unit, value float32) error

	// Apply sends several outputs in one message.
	Apply(id string, outputs []Output) error
}

// PollService asks passive devices for a fresh report.
type PollService interface {
	Poll(ctx context.Context, id string, timeout time.Duration) (*PollResult, error)
}

// EventService manages live subscriptions to device messages.
type EventService interface {
	Subscribe(topic string, client server.Client) error
	Unsubscribe(topic string, client server.Client) error
	Subscribers(topic string) (int, error)
}

// TransportService handles transport information
type TransportService interface {
	ListTransports() ([]TransportInfo, error)
	GetTransport(index int) (*TransportInfo, error)
	GetTransportStats() (map[string]interface{}, error)
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Device    DeviceService
	Output    OutputService
	Poll      PollService
	Event     EventService
	Transport TransportService
}
