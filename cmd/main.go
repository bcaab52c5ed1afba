package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"relay/internal/relay"
	"syscall"
)

func main() {
	configPath := flag.String("config", relay.DefaultConfigPath, "path to the YAML config file")
	logLevel := flag.String("log-level", "", "override logging.level (debug, info, warn, error)")
	flag.Parse()

	config, err := relay.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := config.GetSlogLevel()
	if *logLevel != "" {
		var ok bool
		if level, ok = relay.ParseLevel(*logLevel); !ok {
			fmt.Fprintf(os.Stderr, "invalid -log-level: %s\n", *logLevel)
			os.Exit(1)
		}
	}
	relay.InitLogger(level)

	server := relay.NewServer(config)

	// 서버 시작
	if err := server.Start(); err != nil {
		slog.Error("Failed to start server", "err", err)
		os.Exit(1)
	}

	slog.Info("RTMP Server started", "addr", config.RTMP.Addr)

	// 시그널 수신을 위한 채널 생성
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 시그널 대기
	sig := <-sigChan
	slog.Info("Received signal, shutting down server", "signal", sig)

	// 서버 정지
	server.Stop()
	slog.Info("Server shutdown complete")
}
