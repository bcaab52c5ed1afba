package rtmp

import (
	"encoding/binary"
	"fmt"
)

// chunkWriter serializes messages into chunks, remembering the last header
// sent on every chunk stream to pick the most compact format.
type chunkWriter struct {
	chunkSize   uint32
	prevHeaders map[uint32]*messageHeader
}

func newChunkWriter() *chunkWriter {
	return &chunkWriter{
		chunkSize:   DefaultChunkSize,
		prevHeaders: make(map[uint32]*messageHeader),
	}
}

func (w *chunkWriter) setChunkSize(size uint32) error {
	if size < 1 || size > MaxChunkSize {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	w.chunkSize = size
	return nil
}

// appendMessage appends the chunked encoding of msg to buf.
func (w *chunkWriter) appendMessage(buf []byte, msg *Message) ([]byte, error) {
	csid := msg.ChunkStreamID
	curr := messageHeader{
		timestamp: msg.Timestamp,
		length:    uint32(len(msg.Payload)),
		typeID:    msg.TypeID,
		streamID:  msg.StreamID,
	}

	prev, exists := w.prevHeaders[csid]
	if csid == ChunkStreamProtocol {
		// 제어 메시지는 항상 전체 헤더
		exists = false
	}
	format := w.determineFormatType(prev, exists, &curr)

	// 24비트 필드에 들어갈 값: fmt 0은 절대 타임스탬프, 나머지는 delta
	var field uint32
	switch format {
	case FmtType0:
		curr.delta = curr.timestamp
		field = curr.timestamp
	case FmtType1, FmtType2:
		curr.delta = curr.timestamp - prev.timestamp
		field = curr.delta
	case FmtType3:
		curr.delta = prev.delta
		field = curr.delta
	}
	curr.extended = field >= ExtendedTimestampThreshold

	var err error
	if buf, err = appendBasicHeader(buf, format, csid); err != nil {
		return buf, err
	}
	buf = appendMessageHeader(buf, format, &curr, field)
	if curr.extended {
		buf = binary.BigEndian.AppendUint32(buf, field)
	}

	payload := msg.Payload
	for first := true; first || len(payload) > 0; first = false {
		if !first {
			// 연속 청크: fmt 3, extended timestamp 반복
			if buf, err = appendBasicHeader(buf, FmtType3, csid); err != nil {
				return buf, err
			}
			if curr.extended {
				buf = binary.BigEndian.AppendUint32(buf, field)
			}
		}
		n := len(payload)
		if n > int(w.chunkSize) {
			n = int(w.chunkSize)
		}
		buf = append(buf, payload[:n]...)
		payload = payload[n:]
	}

	w.prevHeaders[csid] = &curr
	return buf, nil
}

// determineFormatType picks the smallest header consistent with prev.
func (w *chunkWriter) determineFormatType(prev *messageHeader, exists bool, curr *messageHeader) byte {
	switch {
	case !exists,
		curr.streamID != prev.streamID,
		curr.typeID != prev.typeID,
		curr.timestamp < prev.timestamp:
		return FmtType0
	case curr.length != prev.length:
		return FmtType1
	case curr.timestamp-prev.timestamp != prev.delta:
		return FmtType2
	default:
		return FmtType3
	}
}
