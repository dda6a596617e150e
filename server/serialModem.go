package server

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbocsi/athub/proto"
)

// Modem commands, first byte of every frame exchanged with the modem.
const (
	modemTransmit  byte = 0x01 // [cmd][packet]
	modemFrequency byte = 0x02 // [cmd][hz u32 LE]
	modemPower     byte = 0x03 // [cmd][dBm]
	modemReceive   byte = 0x80 // [cmd][rssi i16 LE][snr i8, quarter dB][packet]
)

// SerialModem is a HardwareInterface for a LoRa radio behind a USB serial
// bridge. Commands and received packets travel as length-prefixed frames.
type SerialModem struct {
	port SerialPort

	mu       sync.Mutex
	callback func(data []byte, rssi int, snr float64)
	done     chan struct{}
}

func NewSerialModem(port SerialPort) *SerialModem {
	return &SerialModem{port: port}
}

func (m *SerialModem) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return errors.New("modem already initialized")
	}
	m.done = make(chan struct{})
	go m.readLoop(m.done)
	return nil
}

func (m *SerialModem) readLoop(done chan struct{}) {
	reader := bufio.NewReader(m.port)
	for {
		frame, err := proto.ReadFrame(reader)
		if err != nil {
			select {
			case <-done:
			default:
				slog.Warn("Serial modem read failed", "error", err)
			}
			return
		}
		if frame[0] != modemReceive || len(frame) < 4 {
			slog.Debug("Ignoring modem frame", "cmd", frame[0], "size", len(frame))
			continue
		}
		rssi := int(int16(binary.LittleEndian.Uint16(frame[1:3])))
		snr := float64(int8(frame[3])) / 4

		m.mu.Lock()
		cb := m.callback
		m.mu.Unlock()
		if cb != nil {
			cb(frame[4:], rssi, snr)
		}
	}
}

func (m *SerialModem) command(cmd byte, payload []byte) error {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, cmd)
	frame = append(frame, payload...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := proto.WriteFrame(m.port, frame); err != nil {
		return fmt.Errorf("modem command 0x%02x: %w", cmd, err)
	}
	return m.port.Flush()
}

func (m *SerialModem) Transmit(data []byte) error {
	return m.command(modemTransmit, data)
}

func (m *SerialModem) SetReceiveCallback(callback func(data []byte, rssi int, snr float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

func (m *SerialModem) SetFrequency(freq uint32) error {
	return m.command(modemFrequency, binary.LittleEndian.AppendUint32(nil, freq))
}

func (m *SerialModem) SetPower(power uint8) error {
	return m.command(modemPower, []byte{power})
}

func (m *SerialModem) Close() error {
	m.mu.Lock()
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.mu.Unlock()
	return m.port.Close()
}
