package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SX1276MaxPayload is the largest packet the SX1276 FIFO can send.
const SX1276MaxPayload = 255

var ErrPacketTooLarge = errors.New("packet exceeds radio payload limit")

// SX1276Radio implements LoRaRadio for SX1276/SX1278 modules. Packets on air
// are [addr_len][addr][frame].
type SX1276Radio struct {
	config SX1276Config

	running bool
	mu      sync.RWMutex

	msgQueue chan LoRaMessage

	hwInterface HardwareInterface
}

// HardwareInterface abstracts the bus the radio sits on (SPI, UART bridge...).
type HardwareInterface interface {
	Initialize() error
	Transmit(data []byte) error
	SetReceiveCallback(callback func(data []byte, rssi int, snr float64))
	Close() error
	SetFrequency(freq uint32) error
	SetPower(power uint8) error
}

// SX1276Config contains hardware-specific configuration for SX1276 LoRa radio
type SX1276Config struct {
	// SPI Configuration
	SPIDevice string // e.g., "/dev/spidev0.0"
	SPISpeed  uint32 // SPI clock speed in Hz

	// GPIO numbers, not pin numbers
	ResetGPIO int
	IRQPin    int
	CS0Pin    int

	Frequency       uint32 // Hz
	Power           uint8  // dBm (2-20)
	SyncByte        uint8
	Bandwidth       uint32 // Hz (125000, 250000, 500000)
	SpreadingFactor uint8  // 6-12
	CodingRate      uint8  // 5-8
	QueueSize       int
}

func (c SX1276Config) Validate() error {
	switch {
	case c.Frequency < 137000000 || c.Frequency > 1020000000:
		return fmt.Errorf("frequency %d Hz out of SX1276 range", c.Frequency)
	case c.Power < 2 || c.Power > 20:
		return fmt.Errorf("tx power %d dBm out of range 2-20", c.Power)
	case c.SpreadingFactor < 6 || c.SpreadingFactor > 12:
		return fmt.Errorf("spreading factor %d out of range 6-12", c.SpreadingFactor)
	case c.CodingRate < 5 || c.CodingRate > 8:
		return fmt.Errorf("coding rate 4/%d out of range", c.CodingRate)
	}
	return nil
}

// LoRaConfig returns the transport level view of the radio settings.
func (c SX1276Config) LoRaConfig() LoRaConfig {
	return LoRaConfig{
		Frequency:       c.Frequency,
		Bandwidth:       c.Bandwidth,
		SpreadingFactor: c.SpreadingFactor,
		CodingRate:      c.CodingRate,
		TxPower:         c.Power,
	}
}

func NewSX1276Radio(config SX1276Config, hwInterface HardwareInterface) (*SX1276Radio, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if hwInterface == nil {
		return nil, errors.New("hardware interface is required")
	}
	size := config.QueueSize
	if size <= 0 {
		size = 100
	}
	return &SX1276Radio{
		config:      config,
		msgQueue:    make(chan LoRaMessage, size),
		hwInterface: hwInterface,
	}, nil
}

func (r *SX1276Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("radio already running")
	}

	if err := r.hwInterface.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware interface: %w", err)
	}

	if err := r.hwInterface.SetFrequency(r.config.Frequency); err != nil {
		r.hwInterface.Close()
		return fmt.Errorf("failed to set frequency: %w", err)
	}

	if err := r.hwInterface.SetPower(r.config.Power); err != nil {
		r.hwInterface.Close()
		return fmt.Errorf("failed to set power: %w", err)
	}

	r.hwInterface.SetReceiveCallback(r.onHardwareReceive)
	r.running = true

	slog.Info("SX1276 LoRa radio started",
		"frequency", r.config.Frequency,
		"power", r.config.Power,
		"spi_device", r.config.SPIDevice,
		"reset_gpio", r.config.ResetGPIO)

	return nil
}

func (r *SX1276Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	close(r.msgQueue)

	var err error
	if r.hwInterface != nil {
		err = r.hwInterface.Close()
	}

	slog.Info("SX1276 LoRa radio stopped")
	return err
}

func (r *SX1276Radio) Send(address []byte, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return fmt.Errorf("radio not running")
	}
	if len(address) == 0 || len(address) > 0xff {
		return fmt.Errorf("invalid address length %d", len(address))
	}

	size := 1 + len(address) + len(data)
	if size > SX1276MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	packet := make([]byte, 0, size)
	packet = append(packet, uint8(len(address)))
	packet = append(packet, address...)
	packet = append(packet, data...)

	if err := r.hwInterface.Transmit(packet); err != nil {
		return fmt.Errorf("hardware transmit failed: %w", err)
	}

	slog.Debug("SX1276 packet transmitted",
		"address", fmt.Sprintf("%x", address),
		"data_size", len(data),
		"total_size", len(packet))

	return nil
}

// Receive blocks until a packet arrives or the radio is stopped.
func (r *SX1276Radio) Receive() (LoRaMessage, error) {
	msg, ok := <-r.msgQueue
	if !ok {
		return LoRaMessage{}, ErrRadioStopped
	}
	return msg, nil
}

func (r *SX1276Radio) onHardwareReceive(data []byte, rssi int, snr float64) {
	if len(data) < 2 {
		slog.Warn("SX1276 received packet too short", "size", len(data))
		return
	}

	addrLen := int(data[0])
	if addrLen == 0 || len(data) <= 1+addrLen {
		slog.Warn("SX1276 received packet with invalid address length",
			"declared_addr_len", addrLen, "packet_size", len(data))
		return
	}

	// The hardware may reuse its buffer after the callback returns.
	buf := append([]byte(nil), data...)
	loraMsg := LoRaMessage{
		DeviceAddress: buf[1 : 1+addrLen],
		Data:          buf[1+addrLen:],
		RSSI:          rssi,
		SNR:           snr,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return
	}

	select {
	case r.msgQueue <- loraMsg:
		slog.Debug("SX1276 message queued",
			"address", fmt.Sprintf("%x", loraMsg.DeviceAddress),
			"data_size", len(loraMsg.Data),
			"rssi", rssi,
			"snr", snr)
	default:
		slog.Warn("SX1276 message queue full, dropping packet")
	}
}

// DefaultSX1276Config returns a standard configuration for 868MHz operation
func DefaultSX1276Config() SX1276Config {
	return SX1276Config{
		SPIDevice:       "/dev/spidev0.0",
		SPISpeed:        1000000,
		ResetGPIO:       4,
		IRQPin:          17,
		CS0Pin:          8,
		Frequency:       868000000,
		Power:           14,
		SyncByte:        0x12,
		Bandwidth:       125000,
		SpreadingFactor: 7,
		CodingRate:      5,
		QueueSize:       100,
	}
}

// US915Config returns configuration for 915MHz (US ISM band)
func US915Config() SX1276Config {
	config := DefaultSX1276Config()
	config.Frequency = 915000000
	return config
}

// EU433Config returns configuration for 433MHz (EU ISM band)
func EU433Config() SX1276Config {
	config := DefaultSX1276Config()
	config.Frequency = 433000000
	return config
}
