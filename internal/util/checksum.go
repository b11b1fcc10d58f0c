package util

import (
	"encoding/binary"
	"hash/crc32"
)

var crc32Table = crc32.MakeTable(crc32.IEEE)

// ChecksumSize is the width of a stored CRC32 value
const ChecksumSize = 4

// ComputeChecksum computes a CRC32 (IEEE) checksum over each chunk in order
func ComputeChecksum(chunks ...[]byte) uint32 {
	var sum uint32
	for _, c := range chunks {
		sum = crc32.Update(sum, crc32Table, c)
	}
	return sum
}

// ValidateChecksum validates data against an expected checksum
func ValidateChecksum(data []byte, expected uint32) bool {
	return ComputeChecksum(data) == expected
}

// PutChecksum stores sum little-endian in the first four bytes of slot.
// Returns false if slot is too short.
func PutChecksum(slot []byte, sum uint32) bool {
	if len(slot) < ChecksumSize {
		return false
	}
	binary.LittleEndian.PutUint32(slot, sum)
	return true
}

// ReadChecksum extracts a checksum stored by PutChecksum. A zero value means
// the writer did not record one.
func ReadChecksum(slot []byte) uint32 {
	if len(slot) < ChecksumSize {
		return 0
	}
	return binary.LittleEndian.Uint32(slot)
}
