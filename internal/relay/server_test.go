package relay

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"relay/pkg/rtmp"
	"strconv"
	"strings"
	"testing"
)

func TestChannelHandlerCounters(t *testing.T) {
	s := NewServer(DefaultConfig())
	t.Cleanup(s.ticker.Stop)

	events := []any{
		rtmp.ConnectionEstablished{SessionId: "a"},
		rtmp.ConnectionEstablished{SessionId: "b"},
		rtmp.Connected{SessionId: "a", App: "live"},
		rtmp.StreamCreated{SessionId: "a", StreamId: 1},
		rtmp.PublishStarted{SessionId: "a", StreamName: "live/cam"},
		rtmp.PlayStarted{SessionId: "b", StreamName: "live/cam"},
		rtmp.MetaData{SessionId: "a", StreamName: "live/cam", Metadata: &rtmp.Metadata{Width: 640, Height: 360}},
		rtmp.PlayStopped{SessionId: "b", StreamName: "live/cam"},
		rtmp.ConnectionClosed{SessionId: "b", Reason: "closed"},
	}
	for _, ev := range events {
		s.channelHandler(ev)
	}

	got := s.Counters()
	want := Counters{Connections: 1, Publishers: 1, Players: 0, Total: uint64(len(events))}
	if got != want {
		t.Errorf("counters = %+v, want %+v", got, want)
	}
}

func TestServerStartStop(t *testing.T) {
	config := DefaultConfig()
	config.RTMP.Addr = "127.0.0.1:0"
	config.PIDFile = filepath.Join(t.TempDir(), "relay.pid")

	s := NewServer(config)
	if err := s.Start(); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}

	data, err := os.ReadFile(config.PIDFile)
	if err != nil {
		t.Fatalf("pid file not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q", data)
	}

	s.Stop()
	if _, err := os.Stat(config.PIDFile); !os.IsNotExist(err) {
		t.Errorf("pid file not removed: %v", err)
	}
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	first := DefaultConfig()
	first.RTMP.Addr = "127.0.0.1:0"
	a := NewServer(first)
	if err := a.Start(); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	defer a.Stop()

	second := DefaultConfig()
	second.RTMP.Addr = a.rtmp.Addr().String()
	second.PIDFile = filepath.Join(t.TempDir(), "relay.pid")
	b := NewServer(second)
	t.Cleanup(b.ticker.Stop)
	if err := b.Start(); err == nil {
		t.Fatal("expected error but got nil")
	}
	if _, err := os.Stat(second.PIDFile); !os.IsNotExist(err) {
		t.Error("pid file left behind after failed start")
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, slog.LevelInfo, true))

	logger.Debug("hidden")
	logger.Info("Publish started", "stream", "live/cam")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(out, "Publish started") || !strings.Contains(out, "stream=live/cam") {
		t.Errorf("output = %q", out)
	}
	// 소스 경로는 모듈 루트 기준
	if !strings.Contains(out, filepath.Join("internal", "relay", "server_test.go")) {
		t.Errorf("source not relative to module root: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, ok)
		}
	}
}
