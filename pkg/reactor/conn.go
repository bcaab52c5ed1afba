package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a connection registered on a Loop. Apart from Buffered, Busy and
// LastActive its methods must only be called on the loop goroutine.
type Conn struct {
	loop    *Loop
	handle  Handle
	nc      net.Conn
	handler Handler

	interest Interest
	in       []byte
	closed   bool

	mu      sync.Mutex
	out     []byte
	writing bool
	signal  chan struct{}
	quit    chan struct{}

	lastActive atomic.Int64
}

func newConn(l *Loop, h Handle, nc net.Conn) *Conn {
	c := &Conn{
		loop:   l,
		handle: h,
		nc:     nc,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	c.lastActive.Store(time.Now().UnixNano())
	return c
}

func (c *Conn) Handle() Handle {
	return c.handle
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LastActive is the time of the last completed read or write.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Buffered returns the number of bytes waiting to be written.
func (c *Conn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out)
}

// Busy reports whether output is buffered or a write is in flight.
func (c *Conn) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out) > 0 || c.writing
}

// Send queues data for writing and never blocks. When the loop limits
// buffered output and data would exceed it, the connection is closed with
// ErrBacklog once the current dispatch completes.
func (c *Conn) Send(data []byte) error {
	if c.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	limit := c.loop.cfg.MaxBufferedBytes
	if limit > 0 && len(c.out)+len(data) > limit {
		c.mu.Unlock()
		c.loop.closeLater(c, ErrBacklog)
		return ErrBacklog
	}
	c.out = append(c.out, data...)
	c.mu.Unlock()

	c.interest |= InterestWrite
	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close unregisters the connection, closes the socket and notifies the
// handler. Calling it again is a no-op.
func (c *Conn) Close(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.interest = 0
	delete(c.loop.conns, c.handle)
	close(c.quit)
	closeWithLog(c.nc)
	c.in = nil

	if c.handler != nil {
		c.handler.OnClose(c, err)
	}
}

// deliver hands buffered input to the handler.
func (c *Conn) deliver() {
	if len(c.in) == 0 || c.closed {
		return
	}
	n, err := c.handler.OnRead(c, c.in)
	if c.closed {
		return
	}
	if err != nil {
		c.Close(err)
		return
	}
	if n >= len(c.in) {
		c.in = c.in[:0]
		return
	}
	if n > 0 {
		c.in = append(c.in[:0], c.in[n:]...)
	}
}

func (c *Conn) readLoop() {
	for {
		buf := c.loop.pool.Get().([]byte)
		n, err := c.nc.Read(buf)
		if n > 0 {
			if !c.loop.post(event{kind: eventRead, handle: c.handle, data: buf[:n]}) {
				return
			}
		} else {
			c.loop.pool.Put(buf)
		}
		if err != nil {
			c.loop.post(event{kind: eventClosed, handle: c.handle, err: err})
			return
		}
	}
}

func (c *Conn) writeLoop() {
	var pending []byte
	for {
		select {
		case <-c.signal:
		case <-c.quit:
			return
		}

		c.mu.Lock()
		pending, c.out = c.out, pending[:0]
		c.writing = len(pending) > 0
		c.mu.Unlock()

		if len(pending) == 0 {
			continue
		}

		_, err := c.nc.Write(pending)

		c.mu.Lock()
		c.writing = false
		more := len(c.out) > 0
		c.mu.Unlock()

		if err != nil {
			c.loop.post(event{kind: eventClosed, handle: c.handle, err: err})
			return
		}
		c.lastActive.Store(time.Now().UnixNano())

		if more {
			select {
			case c.signal <- struct{}{}:
			default:
			}
			continue
		}
		if !c.loop.post(event{kind: eventWritten, handle: c.handle}) {
			return
		}
	}
}
