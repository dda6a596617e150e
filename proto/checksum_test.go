package proto

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0xffffffff},
		{"zero byte", []byte{0x00}, 0x4e08bfb4},
		{"check string", []byte("123456789"), 0x0376e6e7},
		{"header only", []byte{1, 2, 3, 4, 5, 6, 0, 0, 0}, 0xdbdb716b},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC32(tt.data), "CRC32(%x)", tt.data)
		})
	}
}

func TestCRC32IsNotIEEE(t *testing.T) {
	data := []byte("123456789")
	assert.NotEqual(t, crc32.ChecksumIEEE(data), CRC32(data))
}

func TestCRC32SingleBitFlips(t *testing.T) {
	data := []byte{0xa1, 0x02, 0xff, 0x00, 0x3c, 0x9b, 0x02, 0x04, 0x00}
	base := CRC32(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			if CRC32(flipped) == base {
				t.Errorf("flipping byte %d bit %d did not change the checksum", i, bit)
			}
		}
	}
}

func TestCRC32Consistency(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	assert.Equal(t, CRC32(data), CRC32(data))
}
