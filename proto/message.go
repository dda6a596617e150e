package proto

import "fmt"

// Message is one envelope exchanged with a remote node: its identity, its
// capability bits and up to MaxPackets values. Packets keep insertion order
// on the wire and when read back.
//
// A Message has a single writer. Read-only accessors may run concurrently
// as long as nothing mutates the message at the same time.
type Message struct {
	id      DeviceID
	count   uint8
	bits    DeviceBits
	packets [MaxPackets]DataPacket
}

// Header is the identity/capability part of a message without its payload.
type Header struct {
	ID   DeviceID
	Bits DeviceBits
}

func NewMessage() *Message {
	return &Message{}
}

// NewMessageFor returns an empty message already addressed to id.
func NewMessageFor(id DeviceID, bits DeviceBits) *Message {
	return &Message{id: id, bits: bits}
}

func (m *Message) SetID(id DeviceID) { m.id = id }

// SetIDString sets the id from "xx:xx:xx:xx:xx:xx". On error the current id
// is kept.
func (m *Message) SetIDString(s string) error {
	id, err := ParseDeviceID(s)
	if err != nil {
		return err
	}
	m.id = id
	return nil
}

func (m *Message) ID() DeviceID { return m.id }

func (m *Message) IDString() string { return m.id.String() }

func (m *Message) Header() Header {
	return Header{ID: m.id, Bits: m.bits}
}

func (m *Message) DeviceBits() DeviceBits { return m.bits }

func (m *Message) SetDeviceBits(bits DeviceBits) { m.bits = bits }

// Clear drops all packets and device bits. The id is kept so a node can
// reuse one message for every report.
func (m *Message) Clear() {
	m.count = 0
	m.bits = 0
	m.packets = [MaxPackets]DataPacket{}
}

// Len returns the number of populated packets.
func (m *Message) Len() int { return int(m.count) }

func (m *Message) Full() bool { return m.count >= MaxPackets }

// Packet returns the packet at index i.
func (m *Message) Packet(i int) (DataPacket, error) {
	if i < 0 || i >= int(m.count) {
		return DataPacket{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, m.count)
	}
	return m.packets[i], nil
}

// Packets returns a copy of the populated packets in wire order.
func (m *Message) Packets() []DataPacket {
	out := make([]DataPacket, m.count)
	copy(out, m.packets[:m.count])
	return out
}

func (m *Message) append(p DataPacket) error {
	if m.count >= MaxPackets {
		return ErrCapacityExceeded
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, uint8(p.Type))
	}
	if !p.Unit.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, uint8(p.Unit))
	}
	m.packets[m.count] = p
	m.count++
	return nil
}

// AddPacket appends an already encoded packet.
func (m *Message) AddPacket(p DataPacket) error {
	return m.append(p)
}

func (m *Message) AddLong(value int32, channel uint8, unit Unit, typ PacketType) error {
	return m.append(DataPacket{Channel: channel, Type: typ, Unit: unit, Value: int32Value(value)})
}

func (m *Message) AddFloat(value float32, channel uint8, unit Unit, typ PacketType) error {
	return m.append(DataPacket{Channel: channel, Type: typ, Unit: unit, Value: float32Value(value)})
}

// AddSwitch appends a boolean packet. Switches never carry a unit.
func (m *Message) AddSwitch(value bool, channel uint8, typ PacketType) error {
	return m.append(DataPacket{Channel: channel, Type: typ, Unit: UnitNone, Value: boolValue(value)})
}

func (m *Message) AddLongIn(value int32, channel uint8, unit Unit) error {
	return m.AddLong(value, channel, unit, TypeDigitalIn)
}

func (m *Message) AddLongOut(value int32, channel uint8, unit Unit) error {
	return m.AddLong(value, channel, unit, TypeDigitalOut)
}

func (m *Message) AddFloatIn(value float32, channel uint8, unit Unit) error {
	return m.AddFloat(value, channel, unit, TypeAnalogIn)
}

func (m *Message) AddFloatOut(value float32, channel uint8, unit Unit) error {
	return m.AddFloat(value, channel, unit, TypeAnalogOut)
}

func (m *Message) AddSwitchIn(value bool, channel uint8) error {
	return m.AddSwitch(value, channel, TypeSwitchIn)
}

func (m *Message) AddSwitchOut(value bool, channel uint8) error {
	return m.AddSwitch(value, channel, TypeSwitchOut)
}

// Sensor helpers. All of them report analog inputs.

func (m *Message) AddCelsius(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitCelsius)
}

func (m *Message) AddFahrenheit(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitFahrenheit)
}

func (m *Message) AddPercent(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitPercent)
}

func (m *Message) AddMeter(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitMeter)
}

func (m *Message) AddPascal(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitPascal)
}

func (m *Message) AddHectoPascal(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitHectoPascal)
}

func (m *Message) AddLux(value float32, channel uint8) error {
	return m.AddFloatIn(value, channel, UnitLux)
}

// Equal reports whether both messages carry the same header and packets.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.id != o.id || m.bits != o.bits || m.count != o.count {
		return false
	}
	for i := 0; i < int(m.count); i++ {
		if m.packets[i] != o.packets[i] {
			return false
		}
	}
	return true
}
