package proto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage(t *testing.T, packets int) *Message {
	t.Helper()
	m := NewMessageFor(MustParseDeviceID("a1:02:ff:00:3c:9b"), IsPassive|0x8000)
	for i := 0; i < packets; i++ {
		switch i % 3 {
		case 0:
			require.NoError(t, m.AddCelsius(float32(i)+0.5, uint8(i)))
		case 1:
			require.NoError(t, m.AddLongIn(int32(-i), uint8(i), UnitMeter))
		default:
			require.NoError(t, m.AddSwitchOut(i%2 == 0, uint8(i)))
		}
	}
	return m
}

func TestFillBufferLayout(t *testing.T) {
	m := NewMessageFor(DeviceID{1, 2, 3, 4, 5, 6}, 0x0102)
	require.NoError(t, m.AddLongIn(0x11223344, 9, UnitLux))

	buf := make([]byte, MaxMessageSize)
	n, err := m.FillBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+PacketSize, n)

	want := []byte{
		1, 2, 3, 4, 5, 6, // id
		1,          // count
		0x02, 0x01, // device bits, little-endian
		9, byte(TypeDigitalIn), byte(UnitLux), 0x44, 0x33, 0x22, 0x11,
	}
	assert.Equal(t, want, buf[:n])
}

func TestFillBufferSizeProbe(t *testing.T) {
	for packets := 0; packets <= MaxPackets; packets++ {
		m := sampleMessage(t, packets)

		n, err := m.FillBuffer(nil)
		require.ErrorIs(t, err, ErrBufferTooSmall)
		assert.Equal(t, HeaderSize+packets*PacketSize, n)
		assert.Equal(t, m.Size(), n)

		empty := []byte{}
		n, err = m.FillBuffer(empty)
		require.ErrorIs(t, err, ErrBufferTooSmall)
		assert.Equal(t, m.Size(), n)
	}
}

func TestFillBufferTruncated(t *testing.T) {
	m := sampleMessage(t, 4)

	// Room for the header and two packets plus a few spare bytes.
	buf := bytes.Repeat([]byte{0xee}, HeaderSize+2*PacketSize+3)
	n, err := m.FillBuffer(buf)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, HeaderSize+4*PacketSize, n)

	// The packets that fit were copied, the rest of the buffer is untouched.
	full, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, full[:HeaderSize+2*PacketSize], buf[:HeaderSize+2*PacketSize])
	assert.Equal(t, []byte{0xee, 0xee, 0xee}, buf[HeaderSize+2*PacketSize:])
}

func TestFillBufferHeaderDoesNotFit(t *testing.T) {
	m := sampleMessage(t, 0)
	buf := bytes.Repeat([]byte{0xee}, HeaderSize-1)
	n, err := m.FillBuffer(buf)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, HeaderSize, n)
	assert.Equal(t, bytes.Repeat([]byte{0xee}, HeaderSize-1), buf)
}

func TestMessageRoundTrip(t *testing.T) {
	for packets := 0; packets <= MaxPackets; packets++ {
		m := sampleMessage(t, packets)

		data, err := m.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, m.Size())

		got := NewMessage()
		n, err := got.ReadBuffer(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.True(t, m.Equal(got), "packets=%d", packets)
		assert.Equal(t, m.Packets(), got.Packets())
		assert.Equal(t, m.Header(), got.Header())
	}
}

func TestReadBufferClampsPacketCount(t *testing.T) {
	data := make([]byte, MaxMessageSize)
	data[countOffset] = 200
	for i := 0; i < MaxPackets; i++ {
		off := HeaderSize + i*PacketSize
		data[off] = uint8(i)
		data[off+1] = byte(TypeDigitalIn)
	}

	m := NewMessage()
	n, err := m.ReadBuffer(data)
	require.NoError(t, err)
	assert.Equal(t, MaxPackets, m.Len())
	assert.Equal(t, MaxMessageSize, n)
	p, err := m.Packet(MaxPackets - 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(MaxPackets-1), p.Channel)
}

func TestReadBufferOutOfBounds(t *testing.T) {
	full, err := sampleMessage(t, 3).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"short header", full[:HeaderSize-1]},
		{"missing packet", full[:len(full)-PacketSize]},
		{"partial packet", full[:len(full)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMessage(t, 1)
			before := *m
			_, err := m.ReadBuffer(tt.data)
			require.ErrorIs(t, err, ErrOutOfBounds)
			assert.True(t, m.Equal(&before), "failed read must leave the message untouched")
		})
	}
}

func TestReadBufferRejectsUnknownEnums(t *testing.T) {
	data, err := sampleMessage(t, 1).MarshalBinary()
	require.NoError(t, err)

	badType := bytes.Clone(data)
	badType[HeaderSize+1] = 0x42
	_, err = ParseMessage(badType)
	assert.ErrorIs(t, err, ErrInvalidType)

	badUnit := bytes.Clone(data)
	badUnit[HeaderSize+2] = 0x42
	_, err = ParseMessage(badUnit)
	assert.ErrorIs(t, err, ErrInvalidUnit)
}

func TestReservedDeviceBitsRoundTrip(t *testing.T) {
	m := NewMessage()
	m.SetDeviceBits(0xfff0 | EncryptsData)
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	got, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, DeviceBits(0xfff8), got.DeviceBits())
}

func TestAppendBinary(t *testing.T) {
	m := sampleMessage(t, 2)
	prefix := []byte{0xaa, 0xbb}
	out, err := m.AppendBinary(prefix)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, out[:2])
	assert.Len(t, out, 2+m.Size())
}
