package server

import (
	"sort"
	"sync"
	"time"

	"github.com/mbocsi/athub/proto"
)

// Reading is the latest packet a device reported on one channel for one
// packet type. Channels only distinguish sensors of the same type.
type Reading struct {
	Channel uint8
	Type    proto.PacketType
	Unit    proto.Unit
	Value   [proto.ValueSize]byte
	At      time.Time
}

func (r Reading) key() readingKey { return readingKey{r.Channel, r.Type} }

type readingKey struct {
	channel uint8
	typ     proto.PacketType
}

func (r Reading) Packet() proto.DataPacket {
	return proto.DataPacket{Channel: r.Channel, Type: r.Type, Unit: r.Unit, Value: r.Value}
}

// Device is a point-in-time copy of what the gateway knows about a node.
type Device struct {
	ID        proto.DeviceID
	Name      string
	Bits      proto.DeviceBits
	FirstSeen time.Time
	LastSeen  time.Time
	Messages  uint64
	Readings  []Reading // ordered by channel, then type
	ClientID  string
	Transport string
	Online    bool
}

type deviceEntry struct {
	Device
	readings map[readingKey]Reading
	client   Client
}

func (e *deviceEntry) snapshot() Device {
	d := e.Device
	d.Readings = make([]Reading, 0, len(e.readings))
	for _, r := range e.readings {
		d.Readings = append(d.Readings, r)
	}
	sort.Slice(d.Readings, func(i, j int) bool {
		a, b := d.Readings[i], d.Readings[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Type < b.Type
	})
	return d
}

type DeviceRegistry struct {
	mu    sync.RWMutex
	store map[proto.DeviceID]*deviceEntry
	now   func() time.Time
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{store: make(map[proto.DeviceID]*deviceEntry), now: time.Now}
}

// Observe records a message heard from client. It returns the updated device
// and whether this was the first time the device was seen.
func (r *DeviceRegistry) Observe(client Client, msg *proto.Message) (Device, bool) {
	now := r.now()
	id := msg.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.store[id]
	if !ok {
		e = &deviceEntry{
			Device:   Device{ID: id, Name: id.String(), FirstSeen: now},
			readings: make(map[readingKey]Reading),
		}
		r.store[id] = e
	}

	e.Bits = msg.DeviceBits()
	e.LastSeen = now
	e.Messages++
	e.client = client
	e.Online = true
	e.ClientID = client.Meta().Id
	if t := client.Meta().Transport; t != nil {
		e.Transport = t.Meta().ID
	}

	for _, p := range msg.Packets() {
		r := Reading{Channel: p.Channel, Type: p.Type, Unit: p.Unit, Value: p.Value, At: now}
		e.readings[r.key()] = r
	}

	return e.snapshot(), !ok
}

func (r *DeviceRegistry) Get(id proto.DeviceID) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.store[id]
	if !ok {
		return Device{}, false
	}
	return e.snapshot(), true
}

// ClientFor returns the link the device was last heard on, if it is still up.
func (r *DeviceRegistry) ClientFor(id proto.DeviceID) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.store[id]
	if !ok || e.client == nil {
		return nil, false
	}
	return e.client, true
}

func (r *DeviceRegistry) Delete(id proto.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
}

func (r *DeviceRegistry) Rename(id proto.DeviceID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.store[id]
	if !ok {
		return false
	}
	e.Name = name
	return true
}

// DetachClient marks every device bound to client as offline and returns their
// ids. Readings are kept.
func (r *DeviceRegistry) DetachClient(client Client) []proto.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []proto.DeviceID
	for id, e := range r.store {
		if e.client != client {
			continue
		}
		e.client = nil
		e.Online = false
		ids = append(ids, id)
	}
	return ids
}

// Restore loads previously saved devices. They stay offline until heard from
// again; devices already known are left alone.
func (r *DeviceRegistry) Restore(devices []Device) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, d := range devices {
		if _, ok := r.store[d.ID]; ok {
			continue
		}
		e := &deviceEntry{Device: d, readings: make(map[readingKey]Reading, len(d.Readings))}
		e.Online = false
		e.ClientID = ""
		e.Readings = nil
		for _, rd := range d.Readings {
			e.readings[rd.key()] = rd
		}
		r.store[d.ID] = e
		n++
	}
	return n
}

// List returns all devices ordered by id.
func (r *DeviceRegistry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.store))
	for _, e := range r.store {
		devices = append(devices, e.snapshot())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID.String() < devices[j].ID.String()
	})
	return devices
}

func (r *DeviceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}
