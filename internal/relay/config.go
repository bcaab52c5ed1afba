package relay

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"relay/pkg/rtmp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RTMP          RTMPConfig    `yaml:"rtmp"`
	Reactor       ReactorConfig `yaml:"reactor"`
	Worker        WorkerConfig  `yaml:"worker"`
	Logging       LoggingConfig `yaml:"logging"`
	PIDFile       string        `yaml:"pid_file"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type RTMPConfig struct {
	Addr             string        `yaml:"addr"`
	ChunkSize        uint32        `yaml:"chunk_size"`
	WindowAckSize    uint32        `yaml:"window_ack_size"`
	PeerBandwidth    uint32        `yaml:"peer_bandwidth"`
	MaxChunkStreams  int           `yaml:"max_chunk_streams"`
	MaxBufferedBytes int           `yaml:"max_buffered_bytes"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
}

type ReactorConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type WorkerConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfigPath is used when no -config flag is given.
var DefaultConfigPath = filepath.Join("configs", "default.yaml")

// DefaultConfig returns the configuration used for keys missing from the file.
func DefaultConfig() *Config {
	rc := rtmp.DefaultConfig()
	return &Config{
		RTMP: RTMPConfig{
			Addr:             rc.Addr,
			ChunkSize:        rc.ChunkSize,
			WindowAckSize:    rc.WindowAckSize,
			PeerBandwidth:    rc.PeerBandwidth,
			MaxChunkStreams:  rc.MaxChunkStreams,
			MaxBufferedBytes: rc.MaxBufferedBytes,
			IdleTimeout:      rc.IdleTimeout,
		},
		Reactor: ReactorConfig{PollTimeout: rc.PollTimeout},
		Worker:  WorkerConfig{Size: rc.Workers, Queue: rc.WorkerQueue},
		Logging: LoggingConfig{Level: "info"},

		StatsInterval: rc.StatsInterval,
	}
}

// LoadConfig loads configuration from yaml file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	// 파일 존재 확인
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML onto the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.RTMP.Addr == "" {
		return fmt.Errorf("invalid rtmp addr: must not be empty")
	}

	// 청크 크기는 1 ~ 16777215
	if c.RTMP.ChunkSize < 1 || c.RTMP.ChunkSize > rtmp.MaxChunkSize {
		return fmt.Errorf("invalid chunk_size: %d (must be between 1-%d)", c.RTMP.ChunkSize, rtmp.MaxChunkSize)
	}

	if c.RTMP.WindowAckSize == 0 {
		return fmt.Errorf("invalid window_ack_size: must be positive")
	}

	if c.RTMP.PeerBandwidth == 0 {
		return fmt.Errorf("invalid peer_bandwidth: must be positive")
	}

	if c.RTMP.MaxChunkStreams <= 0 {
		return fmt.Errorf("invalid max_chunk_streams: %d (must be positive)", c.RTMP.MaxChunkStreams)
	}

	if c.RTMP.MaxBufferedBytes <= 0 {
		return fmt.Errorf("invalid max_buffered_bytes: %d (must be positive)", c.RTMP.MaxBufferedBytes)
	}

	// 0 이면 idle 검사 안 함
	if c.RTMP.IdleTimeout < 0 {
		return fmt.Errorf("invalid idle_timeout: %s (must be non-negative)", c.RTMP.IdleTimeout)
	}

	if c.Reactor.PollTimeout <= 0 {
		return fmt.Errorf("invalid poll_timeout: %s (must be positive)", c.Reactor.PollTimeout)
	}

	if c.Worker.Size <= 0 {
		return fmt.Errorf("invalid worker size: %d (must be positive)", c.Worker.Size)
	}

	if c.Worker.Queue <= 0 {
		return fmt.Errorf("invalid worker queue: %d (must be positive)", c.Worker.Queue)
	}

	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid stats_interval: %s (must be non-negative)", c.StatsInterval)
	}

	// 로그 레벨 검증
	if _, ok := ParseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Logging.Level, []string{"debug", "info", "warn", "error"})
	}

	return nil
}

// GetSlogLevel returns slog.Level from config
func (c *Config) GetSlogLevel() slog.Level {
	level, _ := ParseLevel(c.Logging.Level) // 알 수 없으면 info
	return level
}

// ToRTMPConfig maps the file layout onto the RTMP server settings.
func (c *Config) ToRTMPConfig() rtmp.Config {
	return rtmp.Config{
		Addr:             c.RTMP.Addr,
		ChunkSize:        c.RTMP.ChunkSize,
		WindowAckSize:    c.RTMP.WindowAckSize,
		PeerBandwidth:    c.RTMP.PeerBandwidth,
		MaxChunkStreams:  c.RTMP.MaxChunkStreams,
		MaxBufferedBytes: c.RTMP.MaxBufferedBytes,
		IdleTimeout:      c.RTMP.IdleTimeout,
		PollTimeout:      c.Reactor.PollTimeout,
		StatsInterval:    c.StatsInterval,
		Workers:          c.Worker.Size,
		WorkerQueue:      c.Worker.Queue,
		ResponseQueue:    c.Worker.Queue,
	}
}
