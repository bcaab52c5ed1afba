package rtmp

// 프로토콜 상수
const (
	RTMPVersion                = 3
	HandshakeSize              = 1536
	HandshakeRandomSize        = 1528
	DefaultChunkSize           = 128
	MaxChunkSize               = 0xFFFFFF
	ExtendedTimestampThreshold = 0xFFFFFF
	DefaultOutChunkSize        = 4096
	DefaultWindowAckSize       = 5000000
	DefaultPeerBandwidth       = 5000000
	DefaultMaxChunkStreams     = 8
	DefaultStreamID            = 1
)

// connect 응답에 실리는 서버 정보
const (
	FMSVersion   = "FMS/3,0,1,123"
	Capabilities = 31
)

// 메시지 타입
const (
	MsgTypeSetChunkSize    = 0x01
	MsgTypeAbort           = 0x02
	MsgTypeAcknowledgement = 0x03
	MsgTypeUserControl     = 0x04
	MsgTypeWindowAckSize   = 0x05
	MsgTypeSetPeerBW       = 0x06
	MsgTypeAudio           = 0x08
	MsgTypeVideo           = 0x09
	MsgTypeAMF3Data        = 0x0F
	MsgTypeAMF3Command     = 0x11
	MsgTypeAMF0Data        = 0x12
	MsgTypeAMF0Command     = 0x14
)

// 청크 스트림 ID
const (
	ChunkStreamProtocol = 2
	ChunkStreamCommand  = 3
	ChunkStreamAudio    = 4
	ChunkStreamVideo    = 5
	ChunkStreamData     = 6
)

// User Control 이벤트 타입
const (
	UserControlStreamBegin      = 0x00
	UserControlSetBufferLen     = 0x03
	UserControlStreamIsRecorded = 0x04
	UserControlPingRequest      = 0x06
	UserControlPingResponse     = 0x07
)

// Set Peer Bandwidth 제한 타입
const (
	LimitTypeDynamic = 2
)

// 코덱 / 패킷 타입 (시퀀스 헤더 판별용)
const (
	AudioCodecAAC  = 0x0A
	VideoCodecH264 = 0x07
	VideoCodecHEVC = 0x0C

	AACPacketTypeSequenceHeader = 0x00
	AVCPacketTypeSequenceHeader = 0x00
)

// 청크 메시지 헤더 포맷
const (
	FmtType0 = 0 // 전체 헤더
	FmtType1 = 1 // 동일한 스트림 ID
	FmtType2 = 2 // 동일한 길이와 스트림 ID
	FmtType3 = 3 // 헤더 없음
)

// onStatus level
const (
	levelStatus = "status"
	levelError  = "error"
)
