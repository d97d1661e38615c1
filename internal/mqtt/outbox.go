package mqtt

// outbox is a fixed-capacity FIFO of fire-and-forget messages queued while
// disconnected. When full the oldest message is overwritten.
// Not safe for concurrent use; the caller synchronizes.
type outbox struct {
	buf     []Message
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]Message, capacity)}
}

// push queues m. It reports true the first time a message is dropped
// since the last drain.
func (o *outbox) push(m Message) (firstDrop bool) {
	o.buf[o.head] = m
	o.head = (o.head + 1) % len(o.buf)
	if o.count < len(o.buf) {
		o.count++
		return false
	}
	o.dropped++
	return o.dropped == 1
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []Message {
	if o.count == 0 {
		return nil
	}
	out := make([]Message, o.count)
	start := (o.head - o.count + len(o.buf)) % len(o.buf)
	for i := range out {
		out[i] = o.buf[(start+i)%len(o.buf)]
	}
	o.head, o.count, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
