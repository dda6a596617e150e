package proto

import (
	"encoding/binary"
	"math"
)

// DataPacket is one typed value inside a message. Value always holds exactly
// four bytes, which fixes the on-wire packet size at 7 bytes.
type DataPacket struct {
	Channel uint8
	Type    PacketType
	Unit    Unit
	Value   [ValueSize]byte
}

// Float32 reinterprets the value bytes as an IEEE-754 float.
func Float32(v [ValueSize]byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v[:]))
}

// Int32 reinterprets the value bytes as a signed integer.
func Int32(v [ValueSize]byte) int32 {
	return int32(binary.LittleEndian.Uint32(v[:]))
}

// Bool reads a switch value. Only byte 0 is meaningful.
func Bool(v [ValueSize]byte) bool {
	return v[0] != 0
}

func float32Value(f float32) (v [ValueSize]byte) {
	binary.LittleEndian.PutUint32(v[:], math.Float32bits(f))
	return v
}

func int32Value(i int32) (v [ValueSize]byte) {
	binary.LittleEndian.PutUint32(v[:], uint32(i))
	return v
}

func boolValue(b bool) (v [ValueSize]byte) {
	if b {
		v[0] = 1
	}
	return v
}

func (p DataPacket) Float() float32 { return Float32(p.Value) }

func (p DataPacket) Long() int32 { return Int32(p.Value) }

func (p DataPacket) Switch() bool { return Bool(p.Value) }

// Decoded returns the packet value typed according to p.Type: float32 for
// analog packets, bool for switches and int32 otherwise.
func (p DataPacket) Decoded() any {
	switch {
	case p.Type.IsFloat():
		return p.Float()
	case p.Type.IsSwitch():
		return p.Switch()
	default:
		return p.Long()
	}
}

func (p DataPacket) put(b []byte) {
	b[0] = p.Channel
	b[1] = byte(p.Type)
	b[2] = byte(p.Unit)
	copy(b[3:PacketSize], p.Value[:])
}

func parsePacket(b []byte) (DataPacket, error) {
	p := DataPacket{
		Channel: b[0],
		Type:    PacketType(b[1]),
		Unit:    Unit(b[2]),
	}
	if !p.Type.Valid() {
		return DataPacket{}, ErrInvalidType
	}
	if !p.Unit.Valid() {
		return DataPacket{}, ErrInvalidUnit
	}
	copy(p.Value[:], b[3:PacketSize])
	return p, nil
}
