package proto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageIsEmpty(t *testing.T) {
	m := NewMessage()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, DeviceBits(0), m.DeviceBits())
	assert.True(t, m.ID().IsZero())
	assert.Empty(t, m.Packets())
}

func TestMessageSetIDString(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.SetIDString("a1:02:ff:00:3c:9b"))
	assert.Equal(t, DeviceID{0xa1, 0x02, 0xff, 0x00, 0x3c, 0x9b}, m.ID())
	assert.Equal(t, "a1:02:ff:00:3c:9b", m.IDString())

	// A bad id must not clobber the current one.
	err := m.SetIDString("a1:02:ff:00:3c")
	require.ErrorIs(t, err, ErrMalformedID)
	assert.Equal(t, "a1:02:ff:00:3c:9b", m.IDString())
}

func TestMessageHeaderIsSnapshot(t *testing.T) {
	m := NewMessageFor(MustParseDeviceID("01:02:03:04:05:06"), IsPassive|UsesChecksum)
	h := m.Header()

	m.SetDeviceBits(0)
	m.SetID(DeviceID{})

	assert.Equal(t, MustParseDeviceID("01:02:03:04:05:06"), h.ID)
	assert.Equal(t, IsPassive|UsesChecksum, h.Bits)
}

func TestMessageClearKeepsID(t *testing.T) {
	id := MustParseDeviceID("de:ad:be:ef:00:01")
	m := NewMessageFor(id, AcceptsIntervalChange)
	require.NoError(t, m.AddCelsius(21.5, 0))
	require.NoError(t, m.AddSwitchIn(true, 1))

	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, DeviceBits(0), m.DeviceBits())
	assert.Equal(t, id, m.ID())
	_, err := m.Packet(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestMessageCapacity(t *testing.T) {
	m := NewMessage()
	for i := 0; i < MaxPackets; i++ {
		require.NoError(t, m.AddLongIn(int32(i), uint8(i), UnitNone))
	}
	assert.True(t, m.Full())

	err := m.AddLongIn(99, 8, UnitNone)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, MaxPackets, m.Len())

	require.ErrorIs(t, m.AddFloatIn(1, 8, UnitNone), ErrCapacityExceeded)
	require.ErrorIs(t, m.AddSwitchOut(true, 8), ErrCapacityExceeded)
	assert.Equal(t, MaxPackets, m.Len())

	last, err := m.Packet(MaxPackets - 1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), last.Long())
}

func TestMessagePacketIndex(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.AddPercent(55, 3))

	_, err := m.Packet(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.Packet(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	p, err := m.Packet(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), p.Channel)
}

func TestMessageRejectsUnknownEnums(t *testing.T) {
	m := NewMessage()
	assert.ErrorIs(t, m.AddLong(1, 0, UnitNone, PacketType(6)), ErrInvalidType)
	assert.ErrorIs(t, m.AddFloat(1, 0, Unit(8), TypeAnalogIn), ErrInvalidUnit)
	assert.Equal(t, 0, m.Len())
}

func TestValueFidelity(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.AddFloatIn(3.14, 0, UnitNone))
	require.NoError(t, m.AddLongIn(-1, 1, UnitNone))
	require.NoError(t, m.AddSwitchIn(true, 2))
	require.NoError(t, m.AddLongOut(math.MinInt32, 3, UnitMeter))

	p0, _ := m.Packet(0)
	assert.Equal(t, math.Float32bits(3.14), math.Float32bits(Float32(p0.Value)))
	assert.Equal(t, [4]byte{0xc3, 0xf5, 0x48, 0x40}, p0.Value)

	p1, _ := m.Packet(1)
	assert.Equal(t, int32(-1), Int32(p1.Value))
	assert.Equal(t, [4]byte{0xff, 0xff, 0xff, 0xff}, p1.Value)

	p2, _ := m.Packet(2)
	assert.True(t, p2.Switch())
	assert.Equal(t, [4]byte{1, 0, 0, 0}, p2.Value)
	assert.Equal(t, UnitNone, p2.Unit)

	p3, _ := m.Packet(3)
	assert.Equal(t, int32(math.MinInt32), p3.Long())
	assert.Equal(t, TypeDigitalOut, p3.Type)
}

func TestFloatPreservesNaNBits(t *testing.T) {
	nan := math.Float32frombits(0x7fc00001)
	m := NewMessage()
	require.NoError(t, m.AddFloatOut(nan, 0, UnitNone))
	p, _ := m.Packet(0)
	assert.Equal(t, uint32(0x7fc00001), math.Float32bits(p.Float()))
}

func TestConvenienceWrappers(t *testing.T) {
	tests := []struct {
		name string
		add  func(m *Message) error
		typ  PacketType
		unit Unit
	}{
		{"celsius", func(m *Message) error { return m.AddCelsius(20, 1) }, TypeAnalogIn, UnitCelsius},
		{"fahrenheit", func(m *Message) error { return m.AddFahrenheit(68, 1) }, TypeAnalogIn, UnitFahrenheit},
		{"percent", func(m *Message) error { return m.AddPercent(40, 1) }, TypeAnalogIn, UnitPercent},
		{"meter", func(m *Message) error { return m.AddMeter(312, 1) }, TypeAnalogIn, UnitMeter},
		{"pascal", func(m *Message) error { return m.AddPascal(101325, 1) }, TypeAnalogIn, UnitPascal},
		{"hectopascal", func(m *Message) error { return m.AddHectoPascal(1013.25, 1) }, TypeAnalogIn, UnitHectoPascal},
		{"lux", func(m *Message) error { return m.AddLux(800, 1) }, TypeAnalogIn, UnitLux},
		{"long in", func(m *Message) error { return m.AddLongIn(5, 1, UnitNone) }, TypeDigitalIn, UnitNone},
		{"long out", func(m *Message) error { return m.AddLongOut(5, 1, UnitNone) }, TypeDigitalOut, UnitNone},
		{"float out", func(m *Message) error { return m.AddFloatOut(5, 1, UnitPercent) }, TypeAnalogOut, UnitPercent},
		{"switch in", func(m *Message) error { return m.AddSwitchIn(true, 1) }, TypeSwitchIn, UnitNone},
		{"switch out", func(m *Message) error { return m.AddSwitchOut(false, 1) }, TypeSwitchOut, UnitNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMessage()
			require.NoError(t, tt.add(m))
			p, err := m.Packet(0)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.unit, p.Unit)
			assert.Equal(t, uint8(1), p.Channel)
		})
	}
}

func TestPacketsPreserveInsertionOrder(t *testing.T) {
	m := NewMessage()
	for ch := uint8(7); ; ch-- {
		require.NoError(t, m.AddLongIn(int32(ch)*10, ch, UnitNone))
		if ch == 0 {
			break
		}
	}
	for i, p := range m.Packets() {
		assert.Equal(t, uint8(7-i), p.Channel)
		assert.Equal(t, int32(7-i)*10, p.Long())
	}
}
