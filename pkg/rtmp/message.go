package rtmp

import "encoding/binary"

// Message is one reassembled RTMP message.
type Message struct {
	ChunkStreamID uint32
	Timestamp     uint32
	TypeID        uint8
	StreamID      uint32
	Payload       []byte
}

func newControlMessage(typeID uint8, payload []byte) *Message {
	return &Message{
		ChunkStreamID: ChunkStreamProtocol,
		TypeID:        typeID,
		Payload:       payload,
	}
}

func newSetChunkSize(size uint32) *Message {
	return newControlMessage(MsgTypeSetChunkSize, binary.BigEndian.AppendUint32(nil, size&0x7FFFFFFF))
}

func newAcknowledgement(sequence uint32) *Message {
	return newControlMessage(MsgTypeAcknowledgement, binary.BigEndian.AppendUint32(nil, sequence))
}

func newWindowAckSize(size uint32) *Message {
	return newControlMessage(MsgTypeWindowAckSize, binary.BigEndian.AppendUint32(nil, size))
}

func newSetPeerBandwidth(size uint32, limitType byte) *Message {
	payload := binary.BigEndian.AppendUint32(make([]byte, 0, 5), size)
	return newControlMessage(MsgTypeSetPeerBW, append(payload, limitType))
}

func newUserControl(event uint16, value uint32) *Message {
	payload := binary.BigEndian.AppendUint16(make([]byte, 0, 6), event)
	return newControlMessage(MsgTypeUserControl, binary.BigEndian.AppendUint32(payload, value))
}

func newCommandMessage(streamID uint32, payload []byte) *Message {
	return &Message{
		ChunkStreamID: ChunkStreamCommand,
		TypeID:        MsgTypeAMF0Command,
		StreamID:      streamID,
		Payload:       payload,
	}
}

func newDataMessage(streamID uint32, payload []byte) *Message {
	return &Message{
		ChunkStreamID: ChunkStreamData,
		TypeID:        MsgTypeAMF0Data,
		StreamID:      streamID,
		Payload:       payload,
	}
}
