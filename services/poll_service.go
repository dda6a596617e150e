package services

import (
	"context"
	"errors"
	"time"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// DefaultPollTimeout applies when neither the caller nor the config sets one.
const DefaultPollTimeout = 5 * time.Second

// PollServiceImpl implements PollService
type PollServiceImpl struct {
	coordinator *server.Coordinator
	tracker     *QueryTracker
}

// NewPollService creates a poll service and hooks it into the coordinator so
// replies reach waiting polls.
func NewPollService(coordinator *server.Coordinator, defaultTimeout time.Duration) PollService {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultPollTimeout
	}
	ps := &PollServiceImpl{
		coordinator: coordinator,
		tracker:     NewQueryTracker(defaultTimeout),
	}
	coordinator.Observe(func(d server.Device, msg *proto.Message) {
		ps.tracker.HandleResponse(d, msg)
	})
	return ps
}

// Poll sends an empty message to a passive device and waits for its report
func (ps *PollServiceImpl) Poll(ctx context.Context, id string, timeout time.Duration) (*PollResult, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	device, exists := ps.coordinator.Registery.Get(parsed)
	if !exists {
		return nil, notFound(id)
	}
	if !device.Bits.Has(proto.IsPassive) {
		return nil, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Device reports on its own and cannot be polled: " + id,
		}
	}

	start := time.Now()
	send := func() error {
		return ps.coordinator.Send(parsed, proto.NewMessageFor(parsed, device.Bits&proto.UsesChecksum))
	}
	resp, err := ps.tracker.SendQuery(ctx, parsed, send, timeout)
	if err != nil {
		var serviceErr ServiceError
		if errors.As(err, &serviceErr) {
			return nil, serviceErr
		}
		return nil, sendError(id, err)
	}

	return &PollResult{
		Device:   convertDevice(resp.Device),
		Readings: NewMessageEvent(resp.Message, resp.Timestamp).Readings,
		Elapsed:  time.Since(start),
	}, nil
}
