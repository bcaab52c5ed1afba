package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

var (
	ErrLoopStopped = errors.New("reactor stopped")
	ErrClosed      = errors.New("connection closed")
	ErrBacklog     = errors.New("output backlog exceeded")
)

// Handle identifies a connection registered on a Loop. It is never 0.
type Handle uint32

// Interest is the set of notifications a connection wants.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Handler receives the notifications of one connection. Every method is
// called on the loop goroutine.
type Handler interface {
	// OnRead gets the whole unconsumed input and returns how many bytes it used.
	OnRead(c *Conn, data []byte) (int, error)
	// OnWrite is called once the output buffer has been fully flushed.
	OnWrite(c *Conn)
	// OnClose is called exactly once.
	OnClose(c *Conn, err error)
}

// AcceptFunc creates the handler of a newly registered connection.
type AcceptFunc func(c *Conn) Handler

type eventKind int

const (
	eventAccept eventKind = iota
	eventRead
	eventWritten
	eventClosed
)

type event struct {
	kind   eventKind
	handle Handle
	nc     net.Conn
	accept AcceptFunc
	data   []byte
	err    error
}

type timer struct {
	name     string
	interval time.Duration
	next     time.Time
	fn       func()
}

// Config tunes a Loop.
type Config struct {
	// EventQueue bounds the number of pending readiness events.
	EventQueue int
	// ReadBufferSize is the size of one socket read.
	ReadBufferSize int
	// MaxBufferedBytes closes a connection whose unsent output grows past it. 0 disables the limit.
	MaxBufferedBytes int
}

func (c Config) withDefaults() Config {
	if c.EventQueue <= 0 {
		c.EventQueue = 1024
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
	return c
}

// Loop is a single goroutine event loop. Sockets are read and written by
// per-connection goroutines parked in the runtime netpoller; everything they
// observe is posted to the loop, which is the only goroutine that touches
// connection state, handlers, timers and loop callbacks.
type Loop struct {
	cfg    Config
	events chan event
	wake   chan struct{}
	done   chan struct{}
	pool   sync.Pool

	conns      map[Handle]*Conn
	nextHandle Handle
	timers     []*timer
	loops      []func()
	closing    []pendingClose

	lnMu      sync.Mutex
	listeners []net.Listener

	stopOnce sync.Once
}

type pendingClose struct {
	c   *Conn
	err error
}

func NewLoop(cfg Config) *Loop {
	cfg = cfg.withDefaults()
	l := &Loop{
		cfg:    cfg,
		events: make(chan event, cfg.EventQueue),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		conns:  make(map[Handle]*Conn),
	}
	l.pool.New = func() any {
		return make([]byte, cfg.ReadBufferSize)
	}
	return l
}

// Listen binds addr and registers every accepted connection on the loop.
func (l *Loop) Listen(addr string, accept AcceptFunc) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	l.lnMu.Lock()
	l.listeners = append(l.listeners, ln)
	l.lnMu.Unlock()

	go l.acceptConnections(ln, accept)
	return ln.Addr(), nil
}

func (l *Loop) acceptConnections(ln net.Listener, accept AcceptFunc) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-l.done:
			default:
				slog.Error("Accept failed", "addr", ln.Addr(), "err", err)
			}
			return
		}
		l.Attach(nc, accept)
	}
}

// Attach hands an established connection to the loop. Safe from any goroutine.
func (l *Loop) Attach(nc net.Conn, accept AcceptFunc) {
	if !l.post(event{kind: eventAccept, nc: nc, accept: accept}) {
		closeWithLog(nc)
	}
}

// post blocks while the event queue is full, which throttles readers.
func (l *Loop) post(ev event) bool {
	select {
	case l.events <- ev:
		return true
	case <-l.done:
		return false
	}
}

// Wake interrupts the current poll wait. Safe from any goroutine.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AddTimer registers fn to run every interval. Adding an existing name
// updates its interval and callback.
func (l *Loop) AddTimer(name string, interval time.Duration, fn func()) {
	for _, t := range l.timers {
		if t.name == name {
			t.interval = interval
			t.next = time.Now().Add(interval)
			t.fn = fn
			return
		}
	}
	l.timers = append(l.timers, &timer{name: name, interval: interval, next: time.Now().Add(interval), fn: fn})
}

func (l *Loop) RemoveTimer(name string) {
	for i, t := range l.timers {
		if t.name == name {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

// AddLoop registers fn to run once per loop iteration.
func (l *Loop) AddLoop(fn func()) {
	l.loops = append(l.loops, fn)
}

// AddEvent adds interest on a registered connection. See RemoveEvent for
// what each interest controls.
func (l *Loop) AddEvent(h Handle, interest Interest) {
	c, ok := l.conns[h]
	if !ok {
		return
	}
	added := interest &^ c.interest
	c.interest |= interest
	if added&InterestRead != 0 && len(c.in) > 0 {
		c.deliver()
	}
}

// RemoveEvent removes interest from a registered connection. Without
// InterestRead buffered input is held until read interest is added back.
// InterestWrite only gates OnWrite notifications: data passed to Send is
// flushed by the writer goroutine whatever the interest.
func (l *Loop) RemoveEvent(h Handle, interest Interest) {
	if c, ok := l.conns[h]; ok {
		c.interest &^= interest
	}
}

// Conn looks up a registered connection.
func (l *Loop) Conn(h Handle) (*Conn, bool) {
	c, ok := l.conns[h]
	return c, ok
}

// Len returns the number of registered connections.
func (l *Loop) Len() int {
	return len(l.conns)
}

// Run drives the loop until Stop is called.
func (l *Loop) Run(pollTimeout time.Duration) error {
	if pollTimeout <= 0 {
		pollTimeout = 100 * time.Millisecond
	}
	poll := time.NewTimer(pollTimeout)
	defer poll.Stop()

	for {
		if !poll.Stop() {
			select {
			case <-poll.C:
			default:
			}
		}
		poll.Reset(pollTimeout)

		select {
		case ev := <-l.events:
			l.dispatch(ev)
			l.drainEvents()
		case <-l.wake:
		case <-poll.C:
		case <-l.done:
			l.shutdown()
			return nil
		}

		l.checkTimers(time.Now())
		for _, fn := range l.loops {
			fn()
		}
		l.flushClosing()
	}
}

// Stop makes Run return. Safe from any goroutine and idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.lnMu.Lock()
		for _, ln := range l.listeners {
			closeWithLog(ln)
		}
		l.listeners = nil
		l.lnMu.Unlock()
	})
}

// drainEvents dispatches what is already queued without waiting.
func (l *Loop) drainEvents() {
	for i := 0; i < cap(l.events); i++ {
		select {
		case ev := <-l.events:
			l.dispatch(ev)
		default:
			return
		}
	}
}

func (l *Loop) dispatch(ev event) {
	defer l.flushClosing()

	if ev.kind == eventAccept {
		l.register(ev.nc, ev.accept)
		return
	}

	c, ok := l.conns[ev.handle]
	if !ok {
		// 이미 닫힌 연결의 늦은 이벤트
		if ev.data != nil {
			l.pool.Put(ev.data[:cap(ev.data)])
		}
		return
	}

	switch ev.kind {
	case eventRead:
		c.in = append(c.in, ev.data...)
		l.pool.Put(ev.data[:cap(ev.data)])
		c.lastActive.Store(time.Now().UnixNano())
		if c.interest&InterestRead != 0 {
			c.deliver()
		}
	case eventWritten:
		if c.interest&InterestWrite == 0 || c.Busy() {
			return
		}
		l.RemoveEvent(c.handle, InterestWrite)
		c.handler.OnWrite(c)
	case eventClosed:
		c.Close(ev.err)
	}
}

func (l *Loop) register(nc net.Conn, accept AcceptFunc) {
	l.nextHandle++
	if l.nextHandle == 0 {
		l.nextHandle++
	}
	c := newConn(l, l.nextHandle, nc)
	l.conns[c.handle] = c
	c.interest = InterestRead
	c.handler = accept(c)
	if c.handler == nil {
		c.Close(ErrClosed)
		return
	}
	go c.readLoop()
	go c.writeLoop()
}

func (l *Loop) checkTimers(now time.Time) {
	// 콜백이 타이머를 제거할 수 있으므로 복사본으로 순회
	timers := append([]*timer(nil), l.timers...)
	for _, t := range timers {
		if now.Before(t.next) {
			continue
		}
		t.next = t.next.Add(t.interval)
		if t.next.Before(now) {
			t.next = now.Add(t.interval)
		}
		t.fn()
	}
}

// closeLater closes c after the current dispatch returns, so a failing Send
// never re-enters the handler that called it.
func (l *Loop) closeLater(c *Conn, err error) {
	l.closing = append(l.closing, pendingClose{c: c, err: err})
}

func (l *Loop) flushClosing() {
	for len(l.closing) > 0 {
		pending := l.closing
		l.closing = nil
		for _, p := range pending {
			p.c.Close(p.err)
		}
	}
}

func (l *Loop) shutdown() {
	slog.Info("Reactor stopping", "connections", len(l.conns))
	for _, c := range l.conns {
		c.Close(ErrLoopStopped)
	}
	l.flushClosing()
}

func closeWithLog(c interface{ Close() error }) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Error closing resource", "err", err)
	}
}
