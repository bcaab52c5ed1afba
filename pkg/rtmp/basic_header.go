package rtmp

import "fmt"

type basicHeader struct {
	fmt           byte
	chunkStreamID uint32
}

// basicHeaderSize returns the full basic header length given its first byte.
func basicHeaderSize(first byte) int {
	switch first & 0x3F {
	case 0:
		return 2
	case 1:
		return 3
	default:
		return 1
	}
}

// parseBasicHeader expects exactly basicHeaderSize(buf[0]) bytes.
func parseBasicHeader(buf []byte) basicHeader {
	h := basicHeader{fmt: buf[0] >> 6}
	switch len(buf) {
	case 2:
		h.chunkStreamID = 64 + uint32(buf[1])
	case 3:
		h.chunkStreamID = 64 + uint32(buf[1]) + uint32(buf[2])<<8
	default:
		h.chunkStreamID = uint32(buf[0] & 0x3F)
	}
	return h
}

func appendBasicHeader(buf []byte, format byte, csid uint32) ([]byte, error) {
	switch {
	case csid >= 2 && csid <= 63:
		return append(buf, format<<6|byte(csid)), nil
	case csid >= 64 && csid <= 319:
		return append(buf, format<<6, byte(csid-64)), nil
	case csid >= 320 && csid <= 65599:
		v := csid - 64
		return append(buf, format<<6|1, byte(v), byte(v>>8)), nil
	default:
		return buf, fmt.Errorf("chunk stream id %d out of range", csid)
	}
}
