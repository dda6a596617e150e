package server

import (
	"log/slog"
	"sync"

	"github.com/mbocsi/athub/proto"
)

// AllDevices subscribes to messages from every device.
const AllDevices = "*"

// Broker fans device messages out to subscribers. A topic is a device id in
// its string form or AllDevices.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[Client]struct{} // Map topic to hashset of Clients
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[Client]struct{}),
	}
}

func (b *Broker) Subscribe(topic string, client Client) {
	slog.Debug("Subscribing", "topic", topic, "clientId", client.Meta().Id)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[Client]struct{})
	}
	b.subs[topic][client] = struct{}{}
}

// Publish delivers msg to the subscribers of its device and of AllDevices.
// A client subscribed to both receives it once.
func (b *Broker) Publish(msg *proto.Message) int {
	topic := msg.IDString()

	b.mu.RLock()
	targets := make([]Client, 0, len(b.subs[topic])+len(b.subs[AllDevices]))
	for client := range b.subs[topic] {
		targets = append(targets, client)
	}
	for client := range b.subs[AllDevices] {
		if _, dup := b.subs[topic][client]; !dup {
			targets = append(targets, client)
		}
	}
	b.mu.RUnlock()

	sentCount := 0
	for _, client := range targets {
		if err := client.Send(msg); err != nil {
			slog.Warn("There was an error publishing a message to a subscriber", "topic", topic, "client", client.Meta().Id, "error", err.Error())
			continue
		}
		sentCount++
	}
	slog.Debug("Message published",
		"topic", topic,
		"packets", msg.Len(),
		"subscribers", sentCount,
	)
	return sentCount
}

func (b *Broker) Unsubscribe(topic string, client Client) {
	slog.Debug("Unsubscribing", "topic", topic, "clientId", client.Meta().Id)
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[topic]; ok {
		if _, exists := subs[client]; exists {
			delete(subs, client)
		} else {
			slog.Warn("Did not find client in topic to unsubscribe", "topic", topic, "client", client.Meta().Id)
		}
		if len(subs) == 0 {
			delete(b.subs, topic)
		}
	}
}

// UnsubscribeAll drops client from every topic.
func (b *Broker) UnsubscribeAll(client Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subs {
		delete(subs, client)
		if len(subs) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Subs returns a copy of the subscribers of topic.
func (b *Broker) Subs(topic string) map[Client]struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[Client]struct{}, len(b.subs[topic]))
	for c := range b.subs[topic] {
		out[c] = struct{}{}
	}
	return out
}

func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	return topics
}
