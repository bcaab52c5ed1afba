package rtmp

import (
	"encoding/binary"
	"fmt"
)

type readState int

// 선언된 메시지 길이와 무관하게 처음 잡는 버퍼 크기. 이후는 청크가 올 때마다 늘린다
const initialPayloadCap = 4096

const (
	readBasicHeader readState = iota
	readMessageHeader
	readExtendedTimestamp
	readPayload
)

// chunkStream holds the reassembly state of one inbound chunk stream.
type chunkStream struct {
	header  messageHeader
	payload []byte
	active  bool
}

// chunkReader decodes a chunk byte stream incrementally. Input may be split
// anywhere; partial headers are kept in hdr until complete.
type chunkReader struct {
	state      readState
	chunkSize  uint32
	maxStreams int
	streams    map[uint32]*chunkStream

	hdr    [18]byte
	hdrLen int
	need   int

	basic   basicHeader
	current *chunkStream
	field   uint32 // 24-bit timestamp or delta of the header being read
	remain  uint32 // payload bytes left in the current chunk
}

func newChunkReader(maxStreams int) *chunkReader {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxChunkStreams
	}
	return &chunkReader{
		chunkSize:  DefaultChunkSize,
		maxStreams: maxStreams,
		streams:    make(map[uint32]*chunkStream),
		need:       1,
	}
}

func (r *chunkReader) setChunkSize(size uint32) {
	r.chunkSize = size
}

// abort drops the partially received message of csid.
func (r *chunkReader) abort(csid uint32) {
	cs, ok := r.streams[csid]
	if !ok || !cs.active {
		return
	}
	cs.active = false
	cs.payload = nil
	if r.current == cs && r.state == readPayload {
		// 현재 청크의 나머지는 버린다
		r.current = nil
	}
}

// read consumes all of data, calling emit for every completed message.
// emit may change the chunk size; the change applies from the next chunk.
func (r *chunkReader) read(data []byte, emit func(*Message) error) error {
	for len(data) > 0 {
		switch r.state {
		case readBasicHeader, readMessageHeader, readExtendedTimestamp:
			n := copy(r.hdr[r.hdrLen:r.need], data)
			r.hdrLen += n
			data = data[n:]
			if r.hdrLen < r.need {
				return nil
			}
			if err := r.headerComplete(); err != nil {
				return err
			}
			if r.state == readPayload && r.remain == 0 {
				if err := r.finishChunk(emit); err != nil {
					return err
				}
			}

		case readPayload:
			n := int(r.remain)
			if n > len(data) {
				n = len(data)
			}
			if r.current != nil {
				r.current.payload = append(r.current.payload, data[:n]...)
			}
			data = data[n:]
			r.remain -= uint32(n)
			if r.remain == 0 {
				if err := r.finishChunk(emit); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// headerComplete advances the state machine once hdr holds r.need bytes.
func (r *chunkReader) headerComplete() error {
	switch r.state {
	case readBasicHeader:
		if r.hdrLen == 1 {
			if size := basicHeaderSize(r.hdr[0]); size > 1 {
				r.need = size
				return nil
			}
		}
		r.basic = parseBasicHeader(r.hdr[:r.hdrLen])
		if err := r.selectStream(); err != nil {
			return err
		}
		r.state = readMessageHeader
		r.need = r.hdrLen + messageHeaderSize[r.basic.fmt]
		if r.need == r.hdrLen {
			return r.messageHeaderComplete()
		}
		return nil

	case readMessageHeader:
		return r.messageHeaderComplete()

	case readExtendedTimestamp:
		r.field = binary.BigEndian.Uint32(r.hdr[r.hdrLen-4 : r.hdrLen])
		return r.startPayload(true)
	}
	return nil
}

func (r *chunkReader) selectStream() error {
	cs, ok := r.streams[r.basic.chunkStreamID]
	if !ok {
		if r.basic.fmt != FmtType0 {
			return fmt.Errorf("chunk stream %d fmt %d: %w", r.basic.chunkStreamID, r.basic.fmt, ErrNoPreviousHeader)
		}
		if len(r.streams) >= r.maxStreams {
			return fmt.Errorf("chunk stream %d: %w (max %d)", r.basic.chunkStreamID, ErrTooManyChunkStreams, r.maxStreams)
		}
		cs = &chunkStream{}
		r.streams[r.basic.chunkStreamID] = cs
	}
	if cs.active && r.basic.fmt != FmtType3 {
		return fmt.Errorf("chunk stream %d fmt %d: %w", r.basic.chunkStreamID, r.basic.fmt, ErrUnexpectedHeader)
	}
	r.current = cs
	return nil
}

func (r *chunkReader) messageHeaderComplete() error {
	cs := r.current
	start := basicHeaderSize(r.hdr[0])
	buf := r.hdr[start:r.hdrLen]

	extended := false
	switch r.basic.fmt {
	case FmtType0:
		r.field = readUint24BE(buf[0:3])
		cs.header.length = readUint24BE(buf[3:6])
		cs.header.typeID = buf[6]
		cs.header.streamID = binary.LittleEndian.Uint32(buf[7:11])
		extended = r.field == ExtendedTimestampThreshold
	case FmtType1:
		r.field = readUint24BE(buf[0:3])
		cs.header.length = readUint24BE(buf[3:6])
		cs.header.typeID = buf[6]
		extended = r.field == ExtendedTimestampThreshold
	case FmtType2:
		r.field = readUint24BE(buf[0:3])
		extended = r.field == ExtendedTimestampThreshold
	case FmtType3:
		// 연속 청크든 새 메시지든 직전 헤더의 extended timestamp 여부를 따른다
		extended = cs.header.extended
	}

	if r.basic.fmt != FmtType3 {
		cs.header.extended = extended
	}
	if extended {
		r.state = readExtendedTimestamp
		r.need = r.hdrLen + 4
		return nil
	}
	return r.startPayload(false)
}

// startPayload applies the decoded timestamp fields and begins the chunk body.
func (r *chunkReader) startPayload(extended bool) error {
	cs := r.current
	h := &cs.header

	if !cs.active {
		switch r.basic.fmt {
		case FmtType0:
			h.timestamp = r.field
			h.delta = r.field
		case FmtType1, FmtType2:
			h.delta = r.field
			h.timestamp += r.field
		case FmtType3:
			if extended {
				h.delta = r.field
			}
			h.timestamp += h.delta
		}
		cs.active = true
		cs.payload = make([]byte, 0, min(h.length, initialPayloadCap))
	}

	remain := h.length - uint32(len(cs.payload))
	if remain > r.chunkSize {
		remain = r.chunkSize
	}
	r.remain = remain
	r.state = readPayload
	return nil
}

func (r *chunkReader) finishChunk(emit func(*Message) error) error {
	cs := r.current
	r.state = readBasicHeader
	r.hdrLen = 0
	r.need = 1
	r.current = nil

	if cs == nil || !cs.active || uint32(len(cs.payload)) < cs.header.length {
		return nil
	}

	msg := &Message{
		ChunkStreamID: r.basic.chunkStreamID,
		Timestamp:     cs.header.timestamp,
		TypeID:        cs.header.typeID,
		StreamID:      cs.header.streamID,
		Payload:       cs.payload,
	}
	cs.active = false
	cs.payload = nil
	return emit(msg)
}
