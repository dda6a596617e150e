package proto

import (
	"fmt"
	"strings"
)

// PacketType selects how a packet's 4 value bytes are interpreted.
type PacketType uint8

const (
	TypeDigitalIn  PacketType = 0 // int32 from sensor
	TypeAnalogIn   PacketType = 1 // float32 from sensor
	TypeDigitalOut PacketType = 2 // int32 to actuator
	TypeAnalogOut  PacketType = 3 // float32 to actuator
	TypeSwitchIn   PacketType = 4 // bool from sensor
	TypeSwitchOut  PacketType = 5 // bool to actuator
)

func (t PacketType) Valid() bool { return t <= TypeSwitchOut }

// IsInput reports whether the packet flows from device to controller.
func (t PacketType) IsInput() bool {
	return t == TypeDigitalIn || t == TypeAnalogIn || t == TypeSwitchIn
}

func (t PacketType) IsFloat() bool { return t == TypeAnalogIn || t == TypeAnalogOut }

func (t PacketType) IsSwitch() bool { return t == TypeSwitchIn || t == TypeSwitchOut }

func (t PacketType) String() string {
	switch t {
	case TypeDigitalIn:
		return "digital_in"
	case TypeAnalogIn:
		return "analog_in"
	case TypeDigitalOut:
		return "digital_out"
	case TypeAnalogOut:
		return "analog_out"
	case TypeSwitchIn:
		return "switch_in"
	case TypeSwitchOut:
		return "switch_out"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Unit is advisory metadata; it never changes the encoded size.
type Unit uint8

const (
	UnitNone        Unit = 0
	UnitCelsius     Unit = 1
	UnitFahrenheit  Unit = 2
	UnitPercent     Unit = 3
	UnitPascal      Unit = 4
	UnitLux         Unit = 5
	UnitMeter       Unit = 6
	UnitHectoPascal Unit = 7
)

func (u Unit) Valid() bool { return u <= UnitHectoPascal }

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return "none"
	case UnitCelsius:
		return "celsius"
	case UnitFahrenheit:
		return "fahrenheit"
	case UnitPercent:
		return "percent"
	case UnitPascal:
		return "pascal"
	case UnitLux:
		return "lux"
	case UnitMeter:
		return "meter"
	case UnitHectoPascal:
		return "hectopascal"
	default:
		return fmt.Sprintf("unit(%d)", uint8(u))
	}
}

// Symbol returns the human readable unit suffix, e.g. "°C".
func (u Unit) Symbol() string {
	switch u {
	case UnitLux:
		return "lx"
	case UnitCelsius:
		return "°C"
	case UnitMeter:
		return "m"
	case UnitPascal:
		return "Pa"
	case UnitPercent:
		return "%"
	case UnitFahrenheit:
		return "°F"
	case UnitHectoPascal:
		return "hPa"
	default:
		return ""
	}
}

// ParseUnit maps a unit name as returned by String back to a Unit.
func ParseUnit(s string) (Unit, error) {
	for u := UnitNone; u <= UnitHectoPascal; u++ {
		if strings.EqualFold(s, u.String()) || (s != "" && s == u.Symbol()) {
			return u, nil
		}
	}
	if s == "" {
		return UnitNone, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// DeviceBits is the capability bitmask carried in every message header.
// Bits 4-15 are reserved and must survive a round trip untouched.
type DeviceBits uint16

const (
	IsPassive             DeviceBits = 1 << 0 // device only answers, never sends on its own
	AcceptsIntervalChange DeviceBits = 1 << 1
	UsesChecksum          DeviceBits = 1 << 2
	EncryptsData          DeviceBits = 1 << 3
)

func (b DeviceBits) Has(flag DeviceBits) bool { return b&flag == flag }

func (b DeviceBits) String() string {
	names := make([]string, 0, 4)
	if b.Has(IsPassive) {
		names = append(names, "passive")
	}
	if b.Has(AcceptsIntervalChange) {
		names = append(names, "interval")
	}
	if b.Has(UsesChecksum) {
		names = append(names, "checksum")
	}
	if b.Has(EncryptsData) {
		names = append(names, "encrypted")
	}
	if rest := b &^ (IsPassive | AcceptsIntervalChange | UsesChecksum | EncryptsData); rest != 0 {
		names = append(names, fmt.Sprintf("0x%04x", uint16(rest)))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
