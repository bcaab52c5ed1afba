package rtmp

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"relay/pkg/reactor"
	"time"

	"github.com/google/uuid"
)

// transport is what a Session needs from its connection. *reactor.Conn
// implements it.
type transport interface {
	Send(b []byte) error
	Close(err error)
	RemoteAddr() net.Addr
	LastActive() time.Time
}

type sessionRole int

const (
	roleNone sessionRole = iota
	rolePublisher
	rolePlayer
)

// Session is one RTMP connection. All methods run on the loop goroutine.
type Session struct {
	srv    *Server
	conn   transport
	handle reactor.Handle
	uuid   string

	hs      *handshake
	reader  *chunkReader
	writer  *chunkWriter
	scratch []byte

	info         *ConnectInfo
	streamID     uint32
	streamType   string
	receiveAudio bool
	receiveVideo bool

	role   sessionRole
	source *Source
	cache  tagCache

	bytesReceived uint64
	lastAck       uint64
	windowAckSize uint32
	createdAt     time.Time
}

func newSession(srv *Server, conn transport, handle reactor.Handle) *Session {
	return &Session{
		srv:           srv,
		conn:          conn,
		handle:        handle,
		uuid:          uuid.NewString(),
		hs:            newHandshake(),
		reader:        newChunkReader(srv.cfg.MaxChunkStreams),
		writer:        newChunkWriter(),
		scratch:       make([]byte, 0, 4096),
		receiveAudio:  true,
		receiveVideo:  true,
		windowAckSize: srv.cfg.WindowAckSize,
		createdAt:     time.Now(),
	}
}

func (s *Session) ID() string {
	return s.uuid
}

func (s *Session) Handle() reactor.Handle {
	return s.handle
}

func (s *Session) ReceiveAudio() bool {
	return s.receiveAudio
}

func (s *Session) ReceiveVideo() bool {
	return s.receiveVideo
}

func (s *Session) CachedTags() (script, audio, video *Tag) {
	return s.cache.script, s.cache.audio, s.cache.video
}

// WriteTag sends a relayed tag on this session's message stream.
func (s *Session) WriteTag(tag *Tag) error {
	return s.sendMessage(tag.message(s.streamID))
}

// OnRead implements reactor.Handler.
func (s *Session) OnRead(_ *reactor.Conn, data []byte) (int, error) {
	return s.feed(data)
}

// OnWrite implements reactor.Handler. Output is fully buffered so there is
// nothing to resume.
func (s *Session) OnWrite(_ *reactor.Conn) {}

// OnClose implements reactor.Handler.
func (s *Session) OnClose(_ *reactor.Conn, err error) {
	s.srv.closeSession(s, err)
}

// feed consumes all of data: handshake bytes first, chunks afterwards.
func (s *Session) feed(data []byte) (int, error) {
	total := len(data)

	if !s.hs.done() {
		used, reply, err := s.hs.feed(data)
		if err != nil {
			return used, fmt.Errorf("handshake: %w", err)
		}
		if reply != nil {
			if err := s.conn.Send(reply); err != nil {
				return used, err
			}
		}
		if !s.hs.done() {
			return total, nil
		}
		slog.Info("Handshake successful", "sessionId", s.uuid, "addr", s.conn.RemoteAddr())
		data = data[used:]
	}

	if len(data) == 0 {
		return total, nil
	}
	if err := s.acknowledge(len(data)); err != nil {
		return total, err
	}
	if err := s.reader.read(data, s.handleMessage); err != nil {
		return total, fmt.Errorf("chunk: %w", err)
	}
	return total, nil
}

// acknowledge counts received bytes and sends an Acknowledgement once more
// than the window has arrived since the last one.
func (s *Session) acknowledge(n int) error {
	s.bytesReceived += uint64(n)
	if s.windowAckSize == 0 || s.bytesReceived-s.lastAck <= uint64(s.windowAckSize) {
		return nil
	}
	s.lastAck = s.bytesReceived
	return s.sendMessage(newAcknowledgement(uint32(s.bytesReceived)))
}

func (s *Session) sendMessage(msg *Message) error {
	buf, err := s.writer.appendMessage(s.scratch[:0], msg)
	if err != nil {
		return err
	}
	s.scratch = buf[:0]
	return s.conn.Send(buf)
}

func (s *Session) sendMessages(msgs ...*Message) error {
	for _, msg := range msgs {
		if err := s.sendMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleMessage(msg *Message) error {
	switch msg.TypeID {
	case MsgTypeSetChunkSize:
		return s.handleSetChunkSize(msg)
	case MsgTypeAbort:
		if len(msg.Payload) < 4 {
			return fmt.Errorf("abort: %w", ErrInvalidControl)
		}
		s.reader.abort(binary.BigEndian.Uint32(msg.Payload))
	case MsgTypeAcknowledgement:
		// 클라이언트의 ack, 사용하지 않음
	case MsgTypeUserControl:
		return s.handleUserControl(msg)
	case MsgTypeWindowAckSize:
		if len(msg.Payload) < 4 {
			return fmt.Errorf("window ack size: %w", ErrInvalidControl)
		}
		if size := binary.BigEndian.Uint32(msg.Payload); size > 0 {
			s.windowAckSize = size
		}
	case MsgTypeSetPeerBW:
		if len(msg.Payload) >= 5 {
			slog.Debug("Peer bandwidth", "sessionId", s.uuid, "size", binary.BigEndian.Uint32(msg.Payload), "limit", msg.Payload[4])
		}
	case MsgTypeAudio:
		s.handleMedia(TagAudio, msg.Timestamp, msg.Payload)
	case MsgTypeVideo:
		s.handleMedia(TagVideo, msg.Timestamp, msg.Payload)
	case MsgTypeAMF0Data:
		s.handleMedia(TagScript, msg.Timestamp, stripSetDataFrame(msg.Payload))
	case MsgTypeAMF3Data:
		// AMF3 data 는 앞의 1바이트(encoding)를 건너뛰면 AMF0 와 같다
		if len(msg.Payload) > 1 {
			s.handleMedia(TagScript, msg.Timestamp, stripSetDataFrame(msg.Payload[1:]))
		}
	case MsgTypeAMF0Command:
		return s.handleCommand(msg.Payload)
	case MsgTypeAMF3Command:
		if len(msg.Payload) > 1 {
			return s.handleCommand(msg.Payload[1:])
		}
	default:
		slog.Debug("Unhandled RTMP message type", "sessionId", s.uuid, "type", msg.TypeID)
	}
	return nil
}

func (s *Session) handleSetChunkSize(msg *Message) error {
	if len(msg.Payload) < 4 {
		return fmt.Errorf("set chunk size: %w", ErrInvalidControl)
	}
	size := binary.BigEndian.Uint32(msg.Payload)

	// 최상위 비트는 반드시 0, 범위는 1 ~ 16777215
	if size&0x80000000 != 0 || size < 1 || size > MaxChunkSize {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	s.reader.setChunkSize(size)
	slog.Debug("Peer chunk size", "sessionId", s.uuid, "size", size)
	return nil
}

func (s *Session) handleUserControl(msg *Message) error {
	if len(msg.Payload) < 2 {
		return fmt.Errorf("user control: %w", ErrInvalidControl)
	}
	switch binary.BigEndian.Uint16(msg.Payload) {
	case UserControlPingRequest:
		if len(msg.Payload) < 6 {
			return fmt.Errorf("ping request: %w", ErrInvalidControl)
		}
		return s.sendMessage(newUserControl(UserControlPingResponse, binary.BigEndian.Uint32(msg.Payload[2:])))
	case UserControlSetBufferLen:
		// 버퍼 길이는 라이브 전달에 영향 없음
	}
	return nil
}

// handleMedia caches and relays a tag from a publishing session.
func (s *Session) handleMedia(typ TagType, timestamp uint32, data []byte) {
	if s.role != rolePublisher || s.source == nil {
		slog.Debug("Media from non-publisher dropped", "sessionId", s.uuid, "type", typ)
		return
	}

	if typ == TagScript {
		s.srv.inspectMetadata(s, data)
	}

	tag := &Tag{Type: typ, Timestamp: timestamp, Data: data}
	s.cache.update(tag)

	for _, p := range s.srv.registry.Relay(s.source, tag) {
		slog.Warn("Player could not keep up", "stream", s.source.key, "sessionId", p.ID())
	}
}

// detach leaves the Source this session publishes or plays.
func (s *Session) detach() {
	if s.source == nil {
		return
	}

	src := s.source
	switch s.role {
	case rolePublisher:
		s.srv.registry.Unpublish(src, s)
		s.cache = tagCache{}
		s.srv.emit(PublishStopped{SessionId: s.uuid, StreamName: src.key, StreamId: s.streamID})
	case rolePlayer:
		s.srv.registry.Stop(src, s)
		s.srv.emit(PlayStopped{SessionId: s.uuid, StreamName: src.key, StreamId: s.streamID})
	}
	s.source = nil
	s.role = roleNone
}

func (s *Session) waitingForPublisher() bool {
	return s.role == rolePlayer && s.source != nil && s.source.publisher == nil
}

// evict drops a publisher whose stream was taken over by another session.
// The Source already belongs to the new publisher so only local state is
// cleared. The connection stays open.
func (s *Session) evict() {
	if s.role != rolePublisher || s.source == nil {
		return
	}
	src := s.source
	slog.Info("Publish taken over", "sessionId", s.uuid, "stream", src.key)
	s.cache = tagCache{}
	s.source = nil
	s.role = roleNone
	s.srv.emit(PublishStopped{SessionId: s.uuid, StreamName: src.key, StreamId: s.streamID})
}
