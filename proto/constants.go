package proto

// Wire layout of a message:
//
//	ID (6) | Count (1) | DeviceBits (2, little-endian) | Count x Packet (7)
//
// Packet layout:
//
//	Channel (1) | Type (1) | Unit (1) | Value (4, little-endian)
//
// A frame is a message optionally followed by a CRC32 trailer (4 bytes,
// little-endian) when the UsesChecksum device bit is set.
const (
	MaxPackets = 8 // max packets per message

	IDSize         = 6
	CountSize      = 1
	DeviceBitsSize = 2
	ValueSize      = 4

	HeaderSize = IDSize + CountSize + DeviceBitsSize // 9 bytes
	PacketSize = 1 + 1 + 1 + ValueSize               // 7 bytes

	MaxMessageSize = HeaderSize + MaxPackets*PacketSize // 65 bytes

	ChecksumSize = 4
	MaxFrameSize = MaxMessageSize + ChecksumSize

	// Stream framing: one length byte before every frame on byte-stream links.
	LengthFieldSize = 1
	MaxStreamFrame  = 255

	countOffset = IDSize
	bitsOffset  = IDSize + CountSize
)
