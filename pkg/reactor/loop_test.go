package reactor

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

type testHandler struct {
	onRead  func(c *Conn, data []byte) (int, error)
	onWrite func(c *Conn)
	closed  chan error
}

func newTestHandler() *testHandler {
	return &testHandler{closed: make(chan error, 1)}
}

func (h *testHandler) OnRead(c *Conn, data []byte) (int, error) {
	if h.onRead == nil {
		return len(data), nil
	}
	return h.onRead(c, data)
}

func (h *testHandler) OnWrite(c *Conn) {
	if h.onWrite != nil {
		h.onWrite(c)
	}
}

func (h *testHandler) OnClose(c *Conn, err error) {
	h.closed <- err
}

func startLoop(t *testing.T, cfg Config) *Loop {
	t.Helper()
	l := NewLoop(cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(10 * time.Millisecond); err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	}()
	t.Cleanup(func() {
		l.Stop()
		<-done
	})
	return l
}

func waitClosed(t *testing.T, h *testHandler) error {
	t.Helper()
	select {
	case err := <-h.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose was not called")
		return nil
	}
}

func TestLoopEcho(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()
	defer client.Close()

	h := newTestHandler()
	h.onRead = func(c *Conn, data []byte) (int, error) {
		if err := c.Send(data); err != nil {
			return 0, err
		}
		return len(data), nil
	}
	l.Attach(server, func(c *Conn) Handler { return h })

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("echo = %q, want %q", buf, "hello")
	}
}

func TestLoopKeepsUnconsumedInput(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()
	defer client.Close()

	frames := make(chan string, 4)
	h := newTestHandler()
	h.onRead = func(c *Conn, data []byte) (int, error) {
		used := 0
		for len(data)-used >= 4 {
			frames <- string(data[used : used+4])
			used += 4
		}
		return used, nil
	}
	l.Attach(server, func(c *Conn) Handler { return h })

	for _, part := range []string{"ab", "cdef", "gh"} {
		if _, err := client.Write([]byte(part)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	for _, want := range []string{"abcd", "efgh"} {
		select {
		case got := <-frames:
			if got != want {
				t.Errorf("frame = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %q not delivered", want)
		}
	}
}

func TestLoopReadInterest(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()
	defer client.Close()

	reads := make(chan string, 4)
	h := newTestHandler()
	h.onRead = func(c *Conn, data []byte) (int, error) {
		reads <- string(data)
		return len(data), nil
	}
	// read interest comes back once "go" has been flushed to the client
	h.onWrite = func(c *Conn) { l.AddEvent(c.Handle(), InterestRead) }
	l.Attach(server, func(c *Conn) Handler {
		l.RemoveEvent(c.Handle(), InterestRead)
		_ = c.Send([]byte("go"))
		return h
	})

	if _, err := client.Write([]byte("queued")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case got := <-reads:
		t.Fatalf("read %q delivered without read interest", got)
	case <-time.After(50 * time.Millisecond):
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	select {
	case got := <-reads:
		if got != "queued" {
			t.Errorf("read = %q, want %q", got, "queued")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffered input was not delivered after re-enabling read")
	}
}

func TestLoopBacklogClosesConnection(t *testing.T) {
	l := startLoop(t, Config{MaxBufferedBytes: 8})
	server, client := net.Pipe()
	defer client.Close()

	sendErr := make(chan error, 1)
	h := newTestHandler()
	l.Attach(server, func(c *Conn) Handler {
		sendErr <- c.Send(make([]byte, 16))
		return h
	})

	if err := <-sendErr; !errors.Is(err, ErrBacklog) {
		t.Errorf("Send error = %v, want ErrBacklog", err)
	}
	if err := waitClosed(t, h); !errors.Is(err, ErrBacklog) {
		t.Errorf("close error = %v, want ErrBacklog", err)
	}
}

func TestLoopPeerClose(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()

	h := newTestHandler()
	l.Attach(server, func(c *Conn) Handler { return h })
	client.Close()

	if err := waitClosed(t, h); err == nil {
		t.Error("expected a close error after peer hang up")
	}
}

func TestLoopWriteNotification(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()
	defer client.Close()

	written := make(chan int, 1)
	h := newTestHandler()
	h.onWrite = func(c *Conn) { written <- c.Buffered() }
	l.Attach(server, func(c *Conn) Handler {
		_ = c.Send([]byte("payload"))
		return h
	})

	buf := make([]byte, 7)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	select {
	case n := <-written:
		if n != 0 {
			t.Errorf("Buffered() in OnWrite = %d, want 0", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnWrite was not called")
	}
}

func TestLoopSendFlushedWithoutWriteInterest(t *testing.T) {
	l := startLoop(t, Config{})
	server, client := net.Pipe()
	defer client.Close()

	var notified atomic.Bool
	h := newTestHandler()
	h.onWrite = func(c *Conn) { notified.Store(true) }
	l.Attach(server, func(c *Conn) Handler {
		_ = c.Send([]byte("payload"))
		l.RemoveEvent(c.Handle(), InterestWrite)
		return h
	})

	// 쓰기 관심이 없어도 데이터는 나간다
	buf := make([]byte, 7)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "payload" {
		t.Errorf("got %q", buf)
	}

	time.Sleep(50 * time.Millisecond)
	if notified.Load() {
		t.Error("OnWrite called without write interest")
	}
}

func TestLoopTimers(t *testing.T) {
	l := NewLoop(Config{})
	var ticks atomic.Int32
	l.AddTimer("tick", 5*time.Millisecond, func() {
		if ticks.Add(1) == 3 {
			l.RemoveTimer("tick")
			l.Stop()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(time.Millisecond)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		l.Stop()
		t.Fatal("timer did not fire three times")
	}
	if got := ticks.Load(); got != 3 {
		t.Errorf("ticks = %d, want 3", got)
	}
}

func TestLoopStopClosesConnections(t *testing.T) {
	l := NewLoop(Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(10 * time.Millisecond)
	}()

	server, client := net.Pipe()
	defer client.Close()
	h := newTestHandler()
	registered := make(chan struct{})
	l.Attach(server, func(c *Conn) Handler {
		close(registered)
		return h
	})
	<-registered

	l.Stop()
	<-done
	if err := waitClosed(t, h); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("close error = %v, want ErrLoopStopped", err)
	}
}

func TestLoopListen(t *testing.T) {
	l := startLoop(t, Config{})
	h := newTestHandler()
	h.onRead = func(c *Conn, data []byte) (int, error) {
		_ = c.Send(data)
		return len(data), nil
	}
	addr, err := l.Listen("127.0.0.1:0", func(c *Conn) Handler { return h })
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want %q", buf, "ping")
	}
}
