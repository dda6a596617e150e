package proto

import "errors"

var (
	ErrBufferTooSmall   = errors.New("buffer too small for message")
	ErrMalformedID      = errors.New("malformed device id (want xx:xx:xx:xx:xx:xx)")
	ErrCapacityExceeded = errors.New("message is full (max 8 packets)")
	ErrIndexOutOfRange  = errors.New("packet index out of range")
	ErrOutOfBounds      = errors.New("buffer shorter than message structure")
	ErrInvalidType      = errors.New("invalid packet type")
	ErrInvalidUnit      = errors.New("invalid unit")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrFrameTooLarge    = errors.New("frame exceeds stream frame limit")
	ErrEmptyFrame       = errors.New("empty frame")
)
