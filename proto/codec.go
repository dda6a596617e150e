package proto

import (
	"encoding/binary"
	"fmt"
)

// Size returns the number of bytes FillBuffer needs for m.
func (m *Message) Size() int {
	return HeaderSize + int(m.count)*PacketSize
}

// FillBuffer writes the wire form of m into buf and returns the total size
// the whole message needs.
//
// The header is written only if it fits. Packets are copied while they still
// fit, but the returned size always covers every packet, so a call with an
// empty buf reports the required size without writing anything. When the
// message does not fit completely the error is ErrBufferTooSmall.
func (m *Message) FillBuffer(buf []byte) (int, error) {
	capacity := len(buf)
	size := HeaderSize
	if size > capacity {
		return size, ErrBufferTooSmall
	}

	copy(buf[:IDSize], m.id[:])
	buf[countOffset] = m.count
	binary.LittleEndian.PutUint16(buf[bitsOffset:HeaderSize], uint16(m.bits))

	for i := 0; i < int(m.count); i++ {
		if size+PacketSize <= capacity {
			m.packets[i].put(buf[size : size+PacketSize])
		}
		size += PacketSize
	}

	if size > capacity {
		return size, ErrBufferTooSmall
	}
	return size, nil
}

// AppendBinary appends the wire form of m to b.
func (m *Message) AppendBinary(b []byte) ([]byte, error) {
	start := len(b)
	b = append(b, make([]byte, m.Size())...)
	if _, err := m.FillBuffer(b[start:]); err != nil {
		return b[:start], err
	}
	return b, nil
}

func (m *Message) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, m.Size()))
}

// ReadBuffer replaces m with the message encoded at the start of buf and
// returns the number of bytes consumed.
//
// A stored packet count above MaxPackets is clamped silently. No checksum or
// capability validation happens here; see Decode for that.
func (m *Message) ReadBuffer(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("%w: need %d header bytes, have %d", ErrOutOfBounds, HeaderSize, len(buf))
	}

	count := buf[countOffset]
	if count > MaxPackets {
		count = MaxPackets
	}
	need := HeaderSize + int(count)*PacketSize
	if len(buf) < need {
		return 0, fmt.Errorf("%w: need %d bytes for %d packets, have %d", ErrOutOfBounds, need, count, len(buf))
	}

	var out Message
	copy(out.id[:], buf[:IDSize])
	out.bits = DeviceBits(binary.LittleEndian.Uint16(buf[bitsOffset:HeaderSize]))

	off := HeaderSize
	for i := 0; i < int(count); i++ {
		p, err := parsePacket(buf[off : off+PacketSize])
		if err != nil {
			return 0, fmt.Errorf("packet %d: %w", i, err)
		}
		out.packets[i] = p
		off += PacketSize
	}
	out.count = count

	*m = out
	return off, nil
}

func (m *Message) UnmarshalBinary(data []byte) error {
	_, err := m.ReadBuffer(data)
	return err
}

// ParseMessage decodes a bare message (no checksum trailer).
func ParseMessage(data []byte) (*Message, error) {
	m := NewMessage()
	if _, err := m.ReadBuffer(data); err != nil {
		return nil, err
	}
	return m, nil
}
