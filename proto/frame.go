package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serialises m for transmission. Nodes that set UsesChecksum get a
// CRC32 trailer over the message bytes.
func Encode(m *Message) ([]byte, error) {
	data := make([]byte, 0, m.Size()+ChecksumSize)
	data, err := m.AppendBinary(data)
	if err != nil {
		return nil, err
	}
	if m.bits.Has(UsesChecksum) {
		data = binary.LittleEndian.AppendUint32(data, CRC32(data))
	}
	return data, nil
}

// Decode parses a frame produced by Encode. When the header announces
// UsesChecksum the trailer is verified before the message is returned.
// Bytes after the message (and trailer) are ignored.
func Decode(data []byte) (*Message, error) {
	m := NewMessage()
	n, err := m.ReadBuffer(data)
	if err != nil {
		return nil, err
	}
	if !m.bits.Has(UsesChecksum) {
		return m, nil
	}

	if len(data) < n+ChecksumSize {
		return nil, fmt.Errorf("%w: missing checksum trailer", ErrOutOfBounds)
	}
	want := binary.LittleEndian.Uint32(data[n : n+ChecksumSize])
	if got := CRC32(data[:n]); got != want {
		return nil, fmt.Errorf("%w: got 0x%08x, frame says 0x%08x", ErrChecksumMismatch, got, want)
	}
	return m, nil
}

// WriteFrame writes a length-prefixed frame to a byte stream.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxStreamFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 0, LengthFieldSize+len(payload))
	buf = append(buf, byte(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from a byte stream. io.EOF is
// returned unchanged when the stream ends between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthFieldSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteMessage encodes m and writes it as one stream frame.
func WriteMessage(w io.Writer, m *Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}
