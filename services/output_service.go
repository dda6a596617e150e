package services

import (
	"fmt"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// OutputServiceImpl implements OutputService
type OutputServiceImpl struct {
	coordinator *server.Coordinator
}

// NewOutputService creates a new output service
func NewOutputService(coordinator *server.Coordinator) OutputService {
	return &OutputServiceImpl{coordinator: coordinator}
}

// SetSwitch turns a switch channel on or off
func (s *OutputServiceImpl) SetSwitch(id string, channel uint8, on bool) error {
	return s.send(id, func(msg *proto.Message) error {
		return msg.AddSwitchOut(on, channel)
	})
}

// SetLong writes an integer to a digital output channel
func (s *OutputServiceImpl) SetLong(id string, channel uint8, unit proto.Unit, value int32) error {
	return s.send(id, func(msg *proto.Message) error {
		return msg.AddLongOut(value, channel, unit)
	})
}

// SetFloat writes a float to an analog output channel
func (s *OutputServiceImpl) SetFloat(id string, channel uint8, unit proto.Unit, value float32) error {
	return s.send(id, func(msg *proto.Message) error {
		return msg.AddFloatOut(value, channel, unit)
	})
}

// Apply sends all outputs to the device in a single message
func (s *OutputServiceImpl) Apply(id string, outputs []Output) error {
	if len(outputs) == 0 {
		return ServiceError{Code: ErrCodeInvalidInput, Message: "No outputs given"}
	}
	if len(outputs) > proto.MaxPackets {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: fmt.Sprintf("At most %d outputs fit in one message, got %d", proto.MaxPackets, len(outputs)),
		}
	}

	return s.send(id, func(msg *proto.Message) error {
		for i, out := range outputs {
			if err := addOutput(msg, out); err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
		}
		return nil
	})
}

func addOutput(msg *proto.Message, out Output) error {
	unit, err := proto.ParseUnit(out.Unit)
	if err != nil {
		return err
	}

	switch out.Kind {
	case "switch":
		on, err := toBool(out.Value)
		if err != nil {
			return err
		}
		return msg.AddSwitchOut(on, out.Channel)
	case "long":
		v, err := toInt32(out.Value)
		if err != nil {
			return err
		}
		return msg.AddLongOut(v, out.Channel, unit)
	case "float":
		v, err := toFloat32(out.Value)
		if err != nil {
			return err
		}
		return msg.AddFloatOut(v, out.Channel, unit)
	}
	return fmt.Errorf("unknown output kind %q", out.Kind)
}

// send builds a message addressed to the device and routes it to the link it
// was last heard on. The checksum bit follows the device's own setting.
func (s *OutputServiceImpl) send(id string, fill func(*proto.Message) error) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	device, exists := s.coordinator.Registery.Get(parsed)
	if !exists {
		return notFound(id)
	}

	msg := proto.NewMessageFor(parsed, device.Bits&proto.UsesChecksum)
	if err := fill(msg); err != nil {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Invalid output",
			Cause:   err,
		}
	}

	if err := s.coordinator.Send(parsed, msg); err != nil {
		return sendError(id, err)
	}
	return nil
}
