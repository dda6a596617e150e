package services

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// parseID validates a device id from an API caller.
func parseID(id string) (proto.DeviceID, error) {
	parsed, err := proto.ParseDeviceID(id)
	if err != nil {
		return proto.DeviceID{}, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Invalid device id: " + id,
			Cause:   err,
		}
	}
	return parsed, nil
}

func notFound(id string) error {
	return ServiceError{
		Code:    ErrCodeNotFound,
		Message: "Device not found: " + id,
	}
}

// convertDevice converts a registry snapshot to DeviceInfo
func convertDevice(d server.Device) DeviceInfo {
	return DeviceInfo{
		ID:        d.ID.String(),
		Name:      d.Name,
		Bits:      uint16(d.Bits),
		Flags:     d.Bits.String(),
		Passive:   d.Bits.Has(proto.IsPassive),
		Checksum:  d.Bits.Has(proto.UsesChecksum),
		Encrypted: d.Bits.Has(proto.EncryptsData),
		Interval:  d.Bits.Has(proto.AcceptsIntervalChange),
		Connected: d.Online,
		ClientID:  d.ClientID,
		Transport: d.Transport,
		FirstSeen: d.FirstSeen,
		LastSeen:  d.LastSeen,
		Messages:  d.Messages,
		Readings:  convertReadings(d.Readings),
	}
}

func convertReadings(readings []server.Reading) []ReadingInfo {
	result := make([]ReadingInfo, 0, len(readings))
	for _, r := range readings {
		info := convertPacket(r.Packet())
		info.Time = r.At
		result = append(result, info)
	}
	return result
}

// convertPacket decodes a packet for JSON. NaN and infinities are not valid
// JSON numbers and are rendered as strings.
func convertPacket(p proto.DataPacket) ReadingInfo {
	value := p.Decoded()
	if f, ok := value.(float32); ok {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			value = strconv.FormatFloat(float64(f), 'g', -1, 32)
		}
	}
	return ReadingInfo{
		Channel: p.Channel,
		Type:    p.Type.String(),
		Unit:    p.Unit.String(),
		Symbol:  p.Unit.Symbol(),
		Value:   value,
		Raw:     hex.EncodeToString(p.Value[:]),
	}
}

// NewMessageEvent decodes msg for live subscribers.
func NewMessageEvent(msg *proto.Message, at time.Time) MessageEvent {
	readings := make([]ReadingInfo, 0, msg.Len())
	for _, p := range msg.Packets() {
		info := convertPacket(p)
		info.Time = at
		readings = append(readings, info)
	}
	return MessageEvent{
		Device:   msg.IDString(),
		Bits:     uint16(msg.DeviceBits()),
		Flags:    msg.DeviceBits().String(),
		Readings: readings,
		Time:     at,
	}
}

// convertTransportMeta converts transport metadata to TransportInfo
func convertTransportMeta(index int, transport server.Transport) TransportInfo {
	meta := transport.Meta()
	status := "disconnected"
	if meta.Connected {
		status = "connected"
	}

	return TransportInfo{
		Index:       index,
		ID:          meta.ID,
		Name:        meta.Name,
		Type:        meta.Protocol,
		Address:     meta.Address,
		Description: meta.Description,
		Status:      status,
		Connections: len(meta.Clients),
		MaxClients:  meta.MaxClients,
	}
}

// sendError maps coordinator routing errors to service errors.
func sendError(id string, err error) error {
	switch {
	case errors.Is(err, server.ErrDeviceNotFound):
		return notFound(id)
	case errors.Is(err, server.ErrDeviceOffline):
		return ServiceError{
			Code:    ErrCodeUnavailable,
			Message: "Device offline: " + id,
			Cause:   err,
		}
	default:
		return ServiceError{
			Code:    ErrCodeInternal,
			Message: "Failed to send message to " + id,
			Cause:   err,
		}
	}
}

// toInt32 accepts the numeric shapes JSON decoding and MCP arguments produce.
func toInt32(v any) (int32, error) {
	switch n := v.(type) {
	case int:
		return checkInt32(int64(n))
	case int32:
		return n, nil
	case int64:
		return checkInt32(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return checkInt32(int64(n))
	case string:
		i, err := strconv.ParseInt(n, 10, 32)
		return int32(i), err
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}

func checkInt32(n int64) (int32, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%d overflows int32", n)
	}
	return int32(n), nil
}

func toFloat32(v any) (float32, error) {
	switch n := v.(type) {
	case float64:
		if math.Abs(n) > math.MaxFloat32 {
			return 0, fmt.Errorf("%v overflows float32", n)
		}
		return float32(n), nil
	case float32:
		return n, nil
	case int:
		return float32(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 32)
		return float32(f), err
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case string:
		return strconv.ParseBool(b)
	}
	return false, fmt.Errorf("unsupported value %T", v)
}
