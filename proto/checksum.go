package proto

const crc32Poly = 0x04c11db7

// CRC32 computes the checksum used by nodes that set UsesChecksum.
//
// This is a plain MSB-first CRC-32 (poly 0x04C11DB7, seed 0xFFFFFFFF) with no
// reflection and no final XOR. It is not the IEEE variant from hash/crc32 and
// must stay bit-for-bit identical to the firmware implementation.
func CRC32(data []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, c := range data {
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			bit := crc&0x80000000 != 0
			if c&mask != 0 {
				bit = !bit
			}
			crc <<= 1
			if bit {
				crc ^= crc32Poly
			}
		}
	}
	return crc
}
