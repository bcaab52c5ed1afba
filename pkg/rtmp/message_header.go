package rtmp

import "encoding/binary"

// messageHeader is the last header seen or sent on one chunk stream.
type messageHeader struct {
	timestamp uint32
	delta     uint32
	length    uint32
	typeID    uint8
	streamID  uint32
	extended  bool
}

var messageHeaderSize = [4]int{11, 7, 3, 0}

func readUint24BE(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

func appendUint24BE(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>16), byte(v>>8), byte(v))
}

// appendMessageHeader writes the fmt-specific fields of h. field is the
// timestamp (fmt 0) or the delta (fmt 1, 2) to put in the 24-bit slot.
func appendMessageHeader(buf []byte, format byte, h *messageHeader, field uint32) []byte {
	if format == FmtType3 {
		return buf
	}

	ts := field
	if h.extended {
		ts = ExtendedTimestampThreshold
	}
	buf = appendUint24BE(buf, ts)
	if format <= FmtType1 {
		buf = appendUint24BE(buf, h.length)
		buf = append(buf, h.typeID)
	}
	if format == FmtType0 {
		buf = binary.LittleEndian.AppendUint32(buf, h.streamID)
	}
	return buf
}
