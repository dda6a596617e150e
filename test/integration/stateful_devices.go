package integration

import (
	"fmt"
	"sync"

	"github.com/mbocsi/athub/client"
	"github.com/mbocsi/athub/proto"
)

const (
	lampRelay  uint8 = 1
	lampDimmer uint8 = 2
)

// StatefulLamp is a relay plus dimmer node that reports its state back
// after every change.
type StatefulLamp struct {
	client     *client.Client
	mu         sync.RWMutex
	on         bool
	brightness float32
	changed    chan struct{}
}

func NewStatefulLamp(id proto.DeviceID, link client.Transport) *StatefulLamp {
	l := &StatefulLamp{
		client:  client.NewClient("lamp", id, proto.UsesChecksum, link),
		changed: make(chan struct{}, 10),
	}
	l.client.OnOutput(lampRelay, func(p proto.DataPacket) error {
		if p.Type != proto.TypeSwitchOut {
			return fmt.Errorf("relay got %s", p.Type)
		}
		l.mu.Lock()
		l.on = p.Switch()
		l.mu.Unlock()
		return l.stateChanged()
	})
	l.client.OnOutput(lampDimmer, func(p proto.DataPacket) error {
		if p.Type != proto.TypeAnalogOut {
			return fmt.Errorf("dimmer got %s", p.Type)
		}
		l.mu.Lock()
		l.brightness = p.Float()
		l.mu.Unlock()
		return l.stateChanged()
	})
	l.client.OnPoll(l.report)
	return l
}

func (l *StatefulLamp) report(msg *proto.Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := msg.AddSwitchIn(l.on, lampRelay); err != nil {
		return err
	}
	return msg.AddFloatIn(l.brightness, lampDimmer, proto.UnitPercent)
}

func (l *StatefulLamp) stateChanged() error {
	select {
	case l.changed <- struct{}{}:
	default:
	}
	return l.client.Publish(l.report)
}

func (l *StatefulLamp) State() (bool, float32) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.on, l.brightness
}

// PassiveThermometer only speaks when polled. Each answer is a tenth of a
// degree warmer than the last.
type PassiveThermometer struct {
	client *client.Client
	mu     sync.Mutex
	temp   float32
	polls  int
}

func NewPassiveThermometer(id proto.DeviceID, link client.Transport, start float32) *PassiveThermometer {
	th := &PassiveThermometer{
		client: client.NewClient("thermometer", id, proto.IsPassive|proto.UsesChecksum, link),
		temp:   start,
	}
	th.client.OnPoll(func(msg *proto.Message) error {
		th.mu.Lock()
		defer th.mu.Unlock()
		th.polls++
		th.temp += 0.1
		return msg.AddCelsius(th.temp, 1)
	})
	return th
}

func (th *PassiveThermometer) Polls() int {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.polls
}
