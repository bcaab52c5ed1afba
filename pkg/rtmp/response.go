package rtmp

// Response is a command payload produced off the loop goroutine for the
// session identified by UUID.
type Response struct {
	UUID    string
	Payload []byte
}

// responseQueue carries Responses from workers to the loop goroutine.
type responseQueue struct {
	ch   chan Response
	wake func()
}

func newResponseQueue(size int, wake func()) *responseQueue {
	if size <= 0 {
		size = 256
	}
	return &responseQueue{ch: make(chan Response, size), wake: wake}
}

// Push never blocks. Safe from any goroutine.
func (q *responseQueue) Push(r Response) error {
	select {
	case q.ch <- r:
	default:
		return ErrQueueFull
	}
	if q.wake != nil {
		q.wake()
	}
	return nil
}

// drain hands at most one queue's worth of responses to fn.
func (q *responseQueue) drain(fn func(Response)) {
	for i := 0; i < cap(q.ch); i++ {
		select {
		case r := <-q.ch:
			fn(r)
		default:
			return
		}
	}
}
