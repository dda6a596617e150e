// Package store persists the device registry between gateway runs as a
// single CBOR file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// formatVersion is bumped when the record layout changes incompatibly.
const formatVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create store CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create store CBOR decoder mode: %v", err))
	}
}

var ErrUnsupportedVersion = errors.New("unsupported state file version")

type snapshot struct {
	Version int       `cbor:"1,keyasint"`
	SavedAt time.Time `cbor:"2,keyasint"`
	Devices []device  `cbor:"3,keyasint"`
}

// device omits the connection fields; a restored device is offline until it
// reports again.
type device struct {
	ID        []byte    `cbor:"1,keyasint"`
	Name      string    `cbor:"2,keyasint,omitempty"`
	Bits      uint16    `cbor:"3,keyasint"`
	FirstSeen time.Time `cbor:"4,keyasint"`
	LastSeen  time.Time `cbor:"5,keyasint"`
	Messages  uint64    `cbor:"6,keyasint"`
	Readings  []reading `cbor:"7,keyasint"`
}

type reading struct {
	Channel uint8     `cbor:"1,keyasint"`
	Type    uint8     `cbor:"2,keyasint"`
	Unit    uint8     `cbor:"3,keyasint"`
	Value   []byte    `cbor:"4,keyasint"`
	At      time.Time `cbor:"5,keyasint"`
}

// FileStore implements server.StateStore on top of one file. Saves replace
// the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

var _ server.StateStore = (*FileStore)(nil)

func New(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) SaveDevices(devices []server.Device) error {
	snap := snapshot{
		Version: formatVersion,
		SavedAt: s.now().UTC(),
		Devices: make([]device, 0, len(devices)),
	}
	for _, d := range devices {
		snap.Devices = append(snap.Devices, fromDevice(d))
	}
	data, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// LoadDevices returns the saved devices. A missing file is not an error.
func (s *FileStore) LoadDevices() ([]server.Device, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	if snap.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}

	devices := make([]server.Device, 0, len(snap.Devices))
	for i, rec := range snap.Devices {
		d, err := rec.toDevice()
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Clear removes the state file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func fromDevice(d server.Device) device {
	rec := device{
		ID:        d.ID[:],
		Name:      d.Name,
		Bits:      uint16(d.Bits),
		FirstSeen: d.FirstSeen,
		LastSeen:  d.LastSeen,
		Messages:  d.Messages,
		Readings:  make([]reading, 0, len(d.Readings)),
	}
	for _, r := range d.Readings {
		rec.Readings = append(rec.Readings, reading{
			Channel: r.Channel,
			Type:    uint8(r.Type),
			Unit:    uint8(r.Unit),
			Value:   r.Value[:],
			At:      r.At,
		})
	}
	return rec
}

func (rec device) toDevice() (server.Device, error) {
	var d server.Device
	if len(rec.ID) != proto.IDSize {
		return d, fmt.Errorf("id has %d bytes, want %d", len(rec.ID), proto.IDSize)
	}
	copy(d.ID[:], rec.ID)
	d.Name = rec.Name
	d.Bits = proto.DeviceBits(rec.Bits)
	d.FirstSeen = rec.FirstSeen
	d.LastSeen = rec.LastSeen
	d.Messages = rec.Messages

	for _, r := range rec.Readings {
		if len(r.Value) != proto.ValueSize {
			return d, fmt.Errorf("channel %d: value has %d bytes, want %d", r.Channel, len(r.Value), proto.ValueSize)
		}
		if !proto.PacketType(r.Type).Valid() {
			return d, fmt.Errorf("channel %d: %w: %d", r.Channel, proto.ErrInvalidType, r.Type)
		}
		if !proto.Unit(r.Unit).Valid() {
			return d, fmt.Errorf("channel %d: %w: %d", r.Channel, proto.ErrInvalidUnit, r.Unit)
		}
		rd := server.Reading{
			Channel: r.Channel,
			Type:    proto.PacketType(r.Type),
			Unit:    proto.Unit(r.Unit),
			At:      r.At,
		}
		copy(rd.Value[:], r.Value)
		d.Readings = append(d.Readings, rd)
	}
	return d, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
