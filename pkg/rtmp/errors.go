package rtmp

import "errors"

var (
	// Handshake errors
	ErrUnsupportedVersion = errors.New("unsupported RTMP version")

	// Chunk framing errors
	ErrNoPreviousHeader    = errors.New("format type requires previous header")
	ErrUnexpectedHeader    = errors.New("full header inside an unfinished message")
	ErrTooManyChunkStreams = errors.New("too many chunk streams")
	ErrInvalidChunkSize    = errors.New("invalid chunk size")
	ErrInvalidControl      = errors.New("malformed protocol control message")

	// Command errors
	ErrMissingCommandName = errors.New("command name missing")
	ErrMissingStreamName  = errors.New("stream name missing")
	ErrNotConnected       = errors.New("command before connect")

	// Registry errors
	ErrAlreadyPlaying = errors.New("session already plays this stream")

	ErrIdleTimeout = errors.New("session idle timeout")
	ErrQueueFull   = errors.New("response queue full")
)
