package rtmp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

type handshakeState int

const (
	handshakeUninit handshakeState = iota
	handshakeVersionReceived
	handshakeAckSent
	handshakeDone
)

func (s handshakeState) String() string {
	switch s {
	case handshakeUninit:
		return "uninit"
	case handshakeVersionReceived:
		return "version-received"
	case handshakeAckSent:
		return "ack-sent"
	case handshakeDone:
		return "done"
	default:
		return fmt.Sprintf("handshakeState(%d)", int(s))
	}
}

// handshake is the server side of the simple RTMP handshake, fed with
// arbitrarily fragmented input.
type handshake struct {
	state  handshakeState
	buf    [HandshakeSize]byte
	n      int // rolling byte counter, reset on every transition
	epoch  time.Time
	random func([]byte) (int, error)
}

func newHandshake() *handshake {
	return &handshake{epoch: time.Now(), random: rand.Read}
}

func (h *handshake) done() bool {
	return h.state == handshakeDone
}

// feed consumes handshake bytes from data and reports how many it used.
// reply is non-nil exactly once, when C1 is complete: S0+S1+S2.
func (h *handshake) feed(data []byte) (used int, reply []byte, err error) {
	for used < len(data) && h.state != handshakeDone {
		switch h.state {
		case handshakeUninit:
			version := data[used]
			used++
			if version > RTMPVersion {
				return used, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
			}
			h.state = handshakeVersionReceived
			h.n = 0

		case handshakeVersionReceived:
			n := copy(h.buf[h.n:], data[used:])
			h.n += n
			used += n
			if h.n < HandshakeSize {
				continue
			}
			reply, err = h.reply()
			if err != nil {
				return used, nil, err
			}
			h.state = handshakeAckSent
			h.n = 0

		case handshakeAckSent:
			// C2 내용은 검증하지 않는다
			n := HandshakeSize - h.n
			if n > len(data)-used {
				n = len(data) - used
			}
			h.n += n
			used += n
			if h.n == HandshakeSize {
				h.state = handshakeDone
				h.n = 0
			}
		}
	}
	return used, reply, nil
}

// reply builds S0 + S1 + S2, where S2 echoes C1 held in h.buf.
func (h *handshake) reply() ([]byte, error) {
	out := make([]byte, 1+2*HandshakeSize)
	out[0] = RTMPVersion

	s1 := out[1 : 1+HandshakeSize]
	binary.BigEndian.PutUint32(s1[0:4], uint32(time.Since(h.epoch).Milliseconds()))
	// s1[4:8] zero
	if _, err := h.random(s1[8 : 8+HandshakeRandomSize]); err != nil {
		return nil, fmt.Errorf("handshake random: %w", err)
	}

	copy(out[1+HandshakeSize:], h.buf[:])
	return out, nil
}
