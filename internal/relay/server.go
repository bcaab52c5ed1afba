package relay

import (
	"fmt"
	"log/slog"
	"os"
	"relay/pkg/rtmp"
	"strconv"
	"sync"
	"time"
)

// Counters is the application view of what the RTMP server reported through
// its event channel.
type Counters struct {
	Connections int
	Publishers  int
	Players     int
	Total       uint64
}

type Server struct {
	config  *Config
	ticker  *time.Ticker
	rtmp    *rtmp.Server
	channel chan any
	done    chan struct{} // 종료 신호 채널
	stopped chan struct{}

	mu       sync.Mutex
	counters Counters
}

func NewServer(config *Config) *Server {
	channel := make(chan any, 1024)
	interval := config.StatsInterval
	if interval <= 0 {
		interval = time.Hour
	}

	return &Server{
		config:  config,
		channel: channel,
		rtmp:    rtmp.NewServer(config.ToRTMPConfig(), channel),
		ticker:  time.NewTicker(interval),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *Server) Start() error {
	slog.Info("Start Server", "addr", s.config.RTMP.Addr)
	if err := s.writePIDFile(); err != nil {
		return err
	}

	if err := s.rtmp.Start(); err != nil {
		s.removePIDFile()
		return err
	}

	// 이벤트 루프를 고루틴으로 시작
	go s.eventLoop()
	return nil
}

func (s *Server) Stop() {
	slog.Info("Stopping relay server...")

	// 1. RTMP 서버 종료 (남은 이벤트는 channel 에 쌓인다)
	s.rtmp.Stop()

	// 2. 티커 종료
	s.ticker.Stop()

	// 3. 이벤트 루프 종료
	close(s.done)
	<-s.stopped

	// 4. 남은 이벤트 처리
	for {
		select {
		case data := <-s.channel:
			s.channelHandler(data)
		default:
			s.removePIDFile()
			slog.Info("Relay server stopped successfully")
			return
		}
	}
}

// Counters returns a copy of the event counters.
func (s *Server) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Server) eventLoop() {
	defer close(s.stopped)
	for {
		select {
		case data := <-s.channel:
			s.channelHandler(data)
		case <-s.ticker.C:
			c := s.Counters()
			slog.Info("Events", "connections", c.Connections, "publishers", c.Publishers, "players", c.Players, "total", c.Total)
		case <-s.done:
			slog.Info("Relay event loop stopping...")
			return
		}
	}
}

func (s *Server) channelHandler(data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Total++

	switch ev := data.(type) {
	case rtmp.ConnectionEstablished:
		s.counters.Connections++
	case rtmp.ConnectionClosed:
		s.counters.Connections--
		slog.Debug("Connection closed", "sessionId", ev.SessionId, "reason", ev.Reason)
	case rtmp.Connected:
		slog.Debug("Connected", "sessionId", ev.SessionId, "app", ev.App)
	case rtmp.StreamCreated:
		slog.Debug("Stream created", "sessionId", ev.SessionId, "streamId", ev.StreamId)
	case rtmp.PublishStarted:
		s.counters.Publishers++
	case rtmp.PublishStopped:
		s.counters.Publishers--
	case rtmp.PlayStarted:
		s.counters.Players++
	case rtmp.PlayStopped:
		s.counters.Players--
	case rtmp.MetaData:
		if ev.Metadata != nil {
			slog.Debug("Stream metadata", "stream", ev.StreamName,
				"video", fmt.Sprintf("%.0fx%.0f@%.2f", ev.Metadata.Width, ev.Metadata.Height, ev.Metadata.FrameRate))
		}
	default:
		slog.Warn("Unknown event", "type", fmt.Sprintf("%T", data))
	}
}

func (s *Server) writePIDFile() error {
	if s.config.PIDFile == "" {
		return nil
	}
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(s.config.PIDFile, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	slog.Debug("PID file written", "path", s.config.PIDFile)
	return nil
}

func (s *Server) removePIDFile() {
	if s.config.PIDFile == "" {
		return
	}
	if err := os.Remove(s.config.PIDFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove pid file", "path", s.config.PIDFile, "err", err)
	}
}
