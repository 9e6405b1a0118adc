package frame

const checksumOffset = 4

// Checksum computes the 16-bit Internet-style one's-complement
// verification value over one full wire frame (header + body). The two
// transmitted checksum bytes are replaced by the Magic placeholder before
// summing, so encode and verify agree on the covered bytes. Words are
// big-endian; an odd trailing byte is the high byte of a zero-padded
// word; carry beyond 16 bits folds back after each addition. The result
// is the complement of the folded sum.
func Checksum(wire []byte) uint16 {
	var sum uint32
	for i := 0; i < len(wire); i += 2 {
		hi := wire[i]
		var lo byte
		if i+1 < len(wire) {
			lo = wire[i+1]
		}
		if i == checksumOffset {
			hi, lo = Magic, Magic
		}
		sum += uint32(hi)<<8 | uint32(lo)
		if sum > 0xFFFF {
			sum = (sum & 0xFFFF) + 1
		}
	}
	return ^uint16(sum)
}
