package services

import (
	"time"
)

// DeviceInfo represents device information for the service layer
type DeviceInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Bits      uint16        `json:"bits"`
	Flags     string        `json:"flags"`
	Passive   bool          `json:"passive"`
	Checksum  bool          `json:"checksum"`
	Encrypted bool          `json:"encrypted"`
	Interval  bool          `json:"interval_change"`
	Connected bool          `json:"connected"`
	ClientID  string        `json:"client_id,omitempty"`
	Transport string        `json:"transport,omitempty"`
	FirstSeen time.Time     `json:"first_seen"`
	LastSeen  time.Time     `json:"last_seen"`
	Messages  uint64        `json:"messages"`
	Readings  []ReadingInfo `json:"readings"`
}

// ReadingInfo is one channel's latest value, decoded for display.
type ReadingInfo struct {
	Channel uint8     `json:"channel"`
	Type    string    `json:"type"`
	Unit    string    `json:"unit"`
	Symbol  string    `json:"symbol,omitempty"`
	Value   any       `json:"value"`
	Raw     string    `json:"raw"`
	Time    time.Time `json:"time"`
}

// MessageEvent is a device message as streamed to live subscribers.
type MessageEvent struct {
	Device   string        `json:"device"`
	Bits     uint16        `json:"bits"`
	Flags    string        `json:"flags"`
	Readings []ReadingInfo `json:"readings"`
	Time     time.Time     `json:"time"`
}

// Output is one actuator command. Kind is "switch", "long" or "float".
type Output struct {
	Channel uint8  `json:"channel"`
	Kind    string `json:"kind"`
	Unit    string `json:"unit,omitempty"`
	Value   any    `json:"value"`
}

// PollResult is the report a passive device sent back.
type PollResult struct {
	Device   DeviceInfo    `json:"device"`
	Readings []ReadingInfo `json:"readings"`
	Elapsed  time.Duration `json:"elapsed"`
}

// TransportInfo represents transport connection information
type TransportInfo struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	MaxClients  int    `json:"max_clients"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error { return e.Cause }

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeUnavailable  = "UNAVAILABLE"
)
