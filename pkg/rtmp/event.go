package rtmp

// 새로운 연결 이벤트
type ConnectionEstablished struct {
	SessionId  string
	RemoteAddr string
}

// connect 명령 처리 완료 이벤트
type Connected struct {
	SessionId string
	App       string
	FlashVer  string
	TcURL     string
}

// 연결 종료 이벤트
type ConnectionClosed struct {
	SessionId string
	Reason    string
}

// 스트림 생성 이벤트
type StreamCreated struct {
	SessionId string
	StreamId  uint32
}

// Publish 시작 이벤트
type PublishStarted struct {
	SessionId  string
	StreamName string
	StreamType string
	StreamId   uint32
}

// Publish 종료 이벤트
type PublishStopped struct {
	SessionId  string
	StreamName string
	StreamId   uint32
}

// Play 시작 이벤트
type PlayStarted struct {
	SessionId  string
	StreamName string
	StreamId   uint32
}

// Play 종료 이벤트
type PlayStopped struct {
	SessionId  string
	StreamName string
	StreamId   uint32
}

// 메타데이터 수신 이벤트
type MetaData struct {
	SessionId  string
	StreamName string
	Metadata   *Metadata
}
