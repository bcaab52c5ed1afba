package rtmp

// TagType is the kind of media carried by a Tag. Values match the RTMP
// message type ids.
type TagType uint8

const (
	TagAudio  TagType = MsgTypeAudio
	TagVideo  TagType = MsgTypeVideo
	TagScript TagType = MsgTypeAMF0Data
)

func (t TagType) String() string {
	switch t {
	case TagAudio:
		return "audio"
	case TagVideo:
		return "video"
	case TagScript:
		return "script"
	default:
		return "unknown"
	}
}

// Tag is one media message relayed from a publisher to its players.
type Tag struct {
	Type      TagType
	Timestamp uint32
	Data      []byte
}

// IsSequenceHeader reports whether the tag carries codec configuration
// (AAC AudioSpecificConfig, AVC/HEVC decoder configuration record).
func (t *Tag) IsSequenceHeader() bool {
	if len(t.Data) < 2 {
		return false
	}
	switch t.Type {
	case TagAudio:
		return t.Data[0]>>4 == AudioCodecAAC && t.Data[1] == AACPacketTypeSequenceHeader
	case TagVideo:
		codec := t.Data[0] & 0x0F
		if codec != VideoCodecH264 && codec != VideoCodecHEVC {
			return false
		}
		return t.Data[0]>>4 == 1 && t.Data[1] == AVCPacketTypeSequenceHeader
	default:
		return false
	}
}

func (t *Tag) message(streamID uint32) *Message {
	msg := &Message{
		Timestamp: t.Timestamp,
		TypeID:    uint8(t.Type),
		StreamID:  streamID,
		Payload:   t.Data,
	}
	switch t.Type {
	case TagAudio:
		msg.ChunkStreamID = ChunkStreamAudio
	case TagVideo:
		msg.ChunkStreamID = ChunkStreamVideo
	default:
		msg.ChunkStreamID = ChunkStreamData
	}
	return msg
}

// tagCache keeps the tags a late joiner needs before live data.
type tagCache struct {
	script *Tag
	audio  *Tag
	video  *Tag
}

// update caches tag if it is the first of its kind, the newest script tag or
// a newer codec sequence header.
func (c *tagCache) update(tag *Tag) {
	switch tag.Type {
	case TagScript:
		c.script = tag
	case TagAudio:
		if c.audio == nil || tag.IsSequenceHeader() {
			c.audio = tag
		}
	case TagVideo:
		if c.video == nil || tag.IsSequenceHeader() {
			c.video = tag
		}
	}
}
