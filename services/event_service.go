package services

import (
	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// EventServiceImpl implements EventService
type EventServiceImpl struct {
	broker *server.Broker
}

// NewEventService creates a new event service
func NewEventService(broker *server.Broker) EventService {
	return &EventServiceImpl{broker: broker}
}

// Subscribe delivers every message from a device, or from all devices when
// topic is server.AllDevices, to client
func (es *EventServiceImpl) Subscribe(topic string, client server.Client) error {
	topic, err := validateTopic(topic)
	if err != nil {
		return err
	}
	es.broker.Subscribe(topic, client)
	return nil
}

// Unsubscribe stops delivery of a topic to client
func (es *EventServiceImpl) Unsubscribe(topic string, client server.Client) error {
	topic, err := validateTopic(topic)
	if err != nil {
		return err
	}
	es.broker.Unsubscribe(topic, client)
	return nil
}

// Subscribers returns how many clients listen on topic
func (es *EventServiceImpl) Subscribers(topic string) (int, error) {
	topic, err := validateTopic(topic)
	if err != nil {
		return 0, err
	}
	return len(es.broker.Subs(topic)), nil
}

// validateTopic accepts the wildcard or a device id, returning the id in
// canonical form.
func validateTopic(topic string) (string, error) {
	if topic == "" {
		return "", ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Topic cannot be empty",
		}
	}
	if topic == server.AllDevices {
		return topic, nil
	}
	id, err := proto.ParseDeviceID(topic)
	if err != nil {
		return "", ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Topic must be a device id or " + server.AllDevices,
			Cause:   err,
		}
	}
	return id.String(), nil
}
