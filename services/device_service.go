package services

import (
	"strings"

	"github.com/mbocsi/athub/server"
)

// DeviceServiceImpl implements DeviceService
type DeviceServiceImpl struct {
	registry *server.DeviceRegistry
}

// NewDeviceService creates a new device service
func NewDeviceService(registry *server.DeviceRegistry) DeviceService {
	return &DeviceServiceImpl{
		registry: registry,
	}
}

// ListDevices returns all known devices, online or not
func (ds *DeviceServiceImpl) ListDevices() ([]DeviceInfo, error) {
	devices := ds.registry.List()
	result := make([]DeviceInfo, 0, len(devices))

	for _, device := range devices {
		result = append(result, convertDevice(device))
	}

	return result, nil
}

// GetDevice returns a specific device by ID
func (ds *DeviceServiceImpl) GetDevice(id string) (*DeviceInfo, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	device, exists := ds.registry.Get(parsed)
	if !exists {
		return nil, notFound(id)
	}

	info := convertDevice(device)
	return &info, nil
}

// RenameDevice renames a device
func (ds *DeviceServiceImpl) RenameDevice(id, name string) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Device name cannot be empty",
		}
	}

	if !ds.registry.Rename(parsed, name) {
		return notFound(id)
	}
	return nil
}

// ForgetDevice drops a device and its readings
func (ds *DeviceServiceImpl) ForgetDevice(id string) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	if _, exists := ds.registry.Get(parsed); !exists {
		return notFound(id)
	}
	ds.registry.Delete(parsed)
	return nil
}

// GetReadings returns the latest value on every channel of a device
func (ds *DeviceServiceImpl) GetReadings(id string) ([]ReadingInfo, error) {
	device, err := ds.GetDevice(id)
	if err != nil {
		return nil, err
	}
	return device.Readings, nil
}

// IsDeviceConnected checks if device is reachable right now
func (ds *DeviceServiceImpl) IsDeviceConnected(id string) (bool, error) {
	parsed, err := parseID(id)
	if err != nil {
		return false, err
	}
	device, exists := ds.registry.Get(parsed)
	return exists && device.Online, nil
}
