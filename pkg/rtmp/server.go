package rtmp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"relay/pkg/amf"
	"relay/pkg/reactor"
	"relay/pkg/worker"
	"time"
)

type Config struct {
	Addr             string
	ChunkSize        uint32
	WindowAckSize    uint32
	PeerBandwidth    uint32
	MaxChunkStreams  int
	MaxBufferedBytes int
	IdleTimeout      time.Duration
	PollTimeout      time.Duration
	StatsInterval    time.Duration
	Workers          int
	WorkerQueue      int
	ResponseQueue    int
}

func DefaultConfig() Config {
	return Config{
		Addr:             ":1936",
		ChunkSize:        DefaultOutChunkSize,
		WindowAckSize:    DefaultWindowAckSize,
		PeerBandwidth:    DefaultPeerBandwidth,
		MaxChunkStreams:  DefaultMaxChunkStreams,
		MaxBufferedBytes: 8 * 1024 * 1024,
		IdleTimeout:      60 * time.Second,
		PollTimeout:      100 * time.Millisecond,
		StatsInterval:    30 * time.Second,
		Workers:          4,
		WorkerQueue:      256,
		ResponseQueue:    256,
	}
}

// Server is the context shared by every session: the loop, the session
// tables and the live registry. Everything except Start, Stop and the
// response queue is touched only by the loop goroutine.
type Server struct {
	cfg       Config
	loop      *reactor.Loop
	registry  *Registry
	pool      *worker.Pool
	responses *responseQueue

	sessions       map[reactor.Handle]*Session
	sessionsByUUID map[string]*Session

	channel chan<- any
	addr    net.Addr
	started bool
	done    chan struct{}
}

// NewServer creates a server. Lifecycle events are sent to channel without
// blocking; channel may be nil.
func NewServer(cfg Config, channel chan<- any) *Server {
	loop := reactor.NewLoop(reactor.Config{MaxBufferedBytes: cfg.MaxBufferedBytes})
	s := &Server{
		cfg:            cfg,
		loop:           loop,
		registry:       NewRegistry(),
		pool:           worker.NewPool(cfg.Workers, cfg.WorkerQueue),
		responses:      newResponseQueue(cfg.ResponseQueue, loop.Wake),
		sessions:       make(map[reactor.Handle]*Session),
		sessionsByUUID: make(map[string]*Session),
		channel:        channel,
		done:           make(chan struct{}),
	}
	return s
}

func (s *Server) Start() error {
	addr, err := s.loop.Listen(s.cfg.Addr, s.accept)
	if err != nil {
		return fmt.Errorf("rtmp: %w", err)
	}
	s.addr = addr

	s.loop.AddLoop(s.drainResponses)
	if s.cfg.IdleTimeout > 0 {
		s.loop.AddTimer("idle", time.Second, s.checkIdle)
	}
	if s.cfg.StatsInterval > 0 {
		s.loop.AddTimer("stats", s.cfg.StatsInterval, s.logStats)
	}

	s.started = true
	go func() {
		defer close(s.done)
		if err := s.loop.Run(s.cfg.PollTimeout); err != nil {
			slog.Error("Reactor stopped with error", "err", err)
		}
	}()

	slog.Info("RTMP server listening", "addr", addr)
	return nil
}

// Stop closes the listener and every session, then waits for queued worker
// tasks.
func (s *Server) Stop() {
	s.loop.Stop()
	if s.started {
		<-s.done
	}
	s.pool.Close()
	slog.Info("RTMP server stopped")
}

// Addr returns the bound listen address once started.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) accept(c *reactor.Conn) reactor.Handler {
	sess := newSession(s, c, c.Handle())
	s.register(sess)
	slog.Info("New connection", "sessionId", sess.uuid, "addr", c.RemoteAddr())
	s.emit(ConnectionEstablished{SessionId: sess.uuid, RemoteAddr: c.RemoteAddr().String()})
	return sess
}

// register adds sess to both session tables.
func (s *Server) register(sess *Session) {
	s.sessions[sess.handle] = sess
	s.sessionsByUUID[sess.uuid] = sess
}

// closeSession detaches sess from the registry and drops it from both tables.
func (s *Server) closeSession(sess *Session, err error) {
	sess.detach()
	delete(s.sessions, sess.handle)
	delete(s.sessionsByUUID, sess.uuid)

	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	if err == nil || errors.Is(err, reactor.ErrLoopStopped) {
		slog.Info("Session closed", "sessionId", sess.uuid, "reason", reason)
	} else {
		slog.Info("Session terminated", "sessionId", sess.uuid, "reason", reason)
	}
	s.emit(ConnectionClosed{SessionId: sess.uuid, Reason: reason})
}

// drainResponses runs once per loop iteration and delivers worker output to
// sessions that still exist.
func (s *Server) drainResponses() {
	s.responses.drain(func(r Response) {
		sess, ok := s.sessionsByUUID[r.UUID]
		if !ok {
			slog.Debug("Response for closed session dropped", "sessionId", r.UUID)
			return
		}
		if err := sess.sendMessage(newCommandMessage(0, r.Payload)); err != nil {
			slog.Debug("Response send failed", "sessionId", r.UUID, "err", err)
		}
	})
}

// scheduleBWDone builds the onBWDone notification off the loop goroutine.
func (s *Server) scheduleBWDone(sess *Session) {
	id := sess.uuid
	err := s.pool.Submit(func() {
		payload, err := amf.EncodeAMF0Sequence("onBWDone", float64(0), nil)
		if err != nil {
			slog.Error("onBWDone encode failed", "err", err)
			return
		}
		if err := s.responses.Push(Response{UUID: id, Payload: payload}); err != nil {
			slog.Warn("onBWDone dropped", "sessionId", id, "err", err)
		}
	})
	if err != nil {
		slog.Warn("onBWDone not scheduled", "sessionId", id, "err", err)
	}
}

// inspectMetadata decodes a script tag on the worker pool for logging.
func (s *Server) inspectMetadata(sess *Session, data []byte) {
	id, key := sess.uuid, sess.source.key
	err := s.pool.Submit(func() {
		name, md, err := decodeMetadata(data)
		if err != nil {
			slog.Debug("Script tag not decoded", "sessionId", id, "stream", key, "err", err)
			return
		}
		slog.Info("Metadata", "stream", key, "name", name,
			"width", md.Width, "height", md.Height, "framerate", md.FrameRate,
			"videocodec", md.VideoCodecID, "audiocodec", md.AudioCodecID, "encoder", md.Encoder)
		s.emit(MetaData{SessionId: id, StreamName: key, Metadata: md})
	})
	if err != nil {
		slog.Debug("Metadata inspection skipped", "sessionId", id, "err", err)
	}
}

// checkIdle closes sessions with no traffic for IdleTimeout. Players waiting
// for a publisher receive nothing until publishing starts and are kept.
func (s *Server) checkIdle() {
	now := time.Now()
	for _, sess := range s.sessions {
		if sess.waitingForPublisher() {
			continue
		}
		if idle := now.Sub(sess.conn.LastActive()); idle > s.cfg.IdleTimeout {
			slog.Info("Idle session", "sessionId", sess.uuid, "idle", idle)
			sess.conn.Close(ErrIdleTimeout)
		}
	}
}

func (s *Server) logStats() {
	slog.Info("Stats", "sessions", len(s.sessions), "sources", s.registry.Len())
	for _, st := range s.registry.Snapshot() {
		slog.Info("Source", "stream", st.Key, "publishing", st.Publishing, "players", st.Players,
			"tags", st.Tags, "bytes", st.Bytes, "uptime", st.Uptime.Round(time.Second))
	}
}

// emit sends a lifecycle event without blocking. Safe from any goroutine.
func (s *Server) emit(ev any) {
	if s.channel == nil {
		return
	}
	select {
	case s.channel <- ev:
	default:
		slog.Warn("Event dropped", "type", fmt.Sprintf("%T", ev))
	}
}
