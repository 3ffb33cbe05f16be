package mqtt

import "log"

// queuedMsg holds one serialized message awaiting a broker connection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO for messages produced while disconnected;
// the oldest messages are dropped on overflow. Not safe for concurrent use;
// the publisher synchronizes around it.
type outbox struct {
	msgs     []queuedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  bool // a message was dropped since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		msgs:     make([]queuedMsg, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg queuedMsg) {
	if o.count == o.capacity {
		if !o.dropped {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
			o.dropped = true
		}
		// head already points at the oldest entry; overwrite it.
		o.msgs[o.head] = msg
		o.head = (o.head + 1) % o.capacity
		return
	}
	o.msgs[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	o.count++
}

// drain removes and returns all queued messages, oldest first.
func (o *outbox) drain() []queuedMsg {
	if o.count == 0 {
		return nil
	}

	result := make([]queuedMsg, o.count)
	start := (o.head - o.count + o.capacity) % o.capacity
	for i := 0; i < o.count; i++ {
		result[i] = o.msgs[(start+i)%o.capacity]
	}

	o.count = 0
	o.head = 0
	o.dropped = false
	return result
}

func (o *outbox) len() int {
	return o.count
}
