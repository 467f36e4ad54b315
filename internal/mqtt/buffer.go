package mqtt

import "log"

// bufferedMsg is a serialized publish held for replay.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds fault and lifecycle messages published while the broker is
// unreachable. When full, the oldest message gives way. Callers serialise
// access.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int
	logger  *log.Logger
}

func newOutbox(limit int, logger *log.Logger) *outbox {
	if logger == nil {
		logger = log.Default()
	}
	return &outbox{
		msgs:   make([]bufferedMsg, 0, limit),
		limit:  limit,
		logger: logger,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if len(o.msgs) == o.limit {
		if o.dropped == 0 {
			o.logger.Printf("mqtt: outbox full (%d messages), dropping oldest", o.limit)
		}
		o.dropped++
		n := copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:n]
	}
	o.msgs = append(o.msgs, msg)
}

// drain empties the outbox, oldest first, and reports how many messages
// were lost to overflow since the last drain.
func (o *outbox) drain() ([]bufferedMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if len(o.msgs) == 0 {
		return nil, dropped
	}
	out := make([]bufferedMsg, len(o.msgs))
	copy(out, o.msgs)
	o.msgs = o.msgs[:0]
	return out, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
