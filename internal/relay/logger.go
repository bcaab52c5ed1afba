package relay

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger installs a tint handler as the default slog logger.
func InitLogger(level slog.Level) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, level, false)))
}

func newLogHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	// 이 파일 기준으로 모듈 루트를 찾는다 (internal/relay/logger.go)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		// 모듈 밖 파일(표준 라이브러리 등)은 전체 경로 유지
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot+string(filepath.Separator)) {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		AddSource:   true,
		NoColor:     noColor,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})
}

// getProjectRoot strips the internal/relay/<file> suffix from a source path.
func getProjectRoot(path string) string {
	dir := filepath.Dir(path)
	for i := 0; i < 2; i++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return dir
}

// ParseLevel maps a -log-level flag value to a slog.Level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
