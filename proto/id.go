package proto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DeviceID is the 6 byte identity of a remote node, usually its MAC address.
type DeviceID [IDSize]byte

// ParseDeviceID parses "xx:xx:xx:xx:xx:xx" (hex octets, either case).
func ParseDeviceID(s string) (DeviceID, error) {
	octets := strings.Split(s, ":")
	if len(s) != IDSize*3-1 || len(octets) != IDSize {
		return DeviceID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	var id DeviceID
	for i, octet := range octets {
		if len(octet) != 2 {
			return DeviceID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
		}
		if _, err := hex.Decode(id[i:i+1], []byte(octet)); err != nil {
			return DeviceID{}, fmt.Errorf("%w: %q", ErrMalformedID, s)
		}
	}
	return id, nil
}

// MustParseDeviceID is ParseDeviceID for constants; it panics on bad input.
func MustParseDeviceID(s string) DeviceID {
	id, err := ParseDeviceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String formats the id as lowercase colon separated hex, e.g. a1:02:ff:00:3c:9b.
func (id DeviceID) String() string {
	const digits = "0123456789abcdef"
	buf := make([]byte, 0, IDSize*3-1)
	for i, b := range id {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, digits[b>>4], digits[b&0x0f])
	}
	return string(buf)
}

func (id DeviceID) IsZero() bool { return id == DeviceID{} }

func (id DeviceID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DeviceID) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
