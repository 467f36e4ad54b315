package mqtt

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func pushN(o *outbox, from, to int) {
	for i := from; i < to; i++ {
		o.push(bufferedMsg{topic: TopicFault, payload: []byte{byte(i)}, qos: 1})
	}
}

func payloadBytes(msgs []bufferedMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10, nil)
	got, dropped := o.drain()
	if got != nil || dropped != 0 {
		t.Errorf("empty drain: got %d items, %d dropped", len(got), dropped)
	}
}

func TestOutboxDrainOrder(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		pushed      int
		want        []byte
		wantDropped int
	}{
		{"partial", 10, 5, []byte{0, 1, 2, 3, 4}, 0},
		{"exactly full", 4, 4, []byte{0, 1, 2, 3}, 0},
		{"overflow keeps newest", 5, 8, []byte{3, 4, 5, 6, 7}, 3},
		{"overflow many times", 3, 7, []byte{4, 5, 6}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOutbox(tt.limit, log.New(&bytes.Buffer{}, "", 0))
			pushN(o, 0, tt.pushed)
			got, dropped := o.drain()
			if !bytes.Equal(payloadBytes(got), tt.want) {
				t.Errorf("drained %v, want %v", payloadBytes(got), tt.want)
			}
			if dropped != tt.wantDropped {
				t.Errorf("dropped: got %d, want %d", dropped, tt.wantDropped)
			}
			if o.len() != 0 {
				t.Errorf("len after drain: %d", o.len())
			}
		})
	}
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(5, nil)
	pushN(o, 0, 3)
	o.drain()

	pushN(o, 10, 14)
	if o.len() != 4 {
		t.Fatalf("len: got %d, want 4", o.len())
	}
	got, _ := o.drain()
	if !bytes.Equal(payloadBytes(got), []byte{10, 11, 12, 13}) {
		t.Errorf("second cycle drained %v", payloadBytes(got))
	}
}

func TestOutboxDrainDoesNotAlias(t *testing.T) {
	o := newOutbox(3, nil)
	pushN(o, 0, 2)
	got, _ := o.drain()
	pushN(o, 7, 9)
	if !bytes.Equal(payloadBytes(got), []byte{0, 1}) {
		t.Errorf("drained slice changed after reuse: %v", payloadBytes(got))
	}
}

func TestOutboxOverflowLogsOncePerDrain(t *testing.T) {
	var buf bytes.Buffer
	o := newOutbox(2, log.New(&buf, "", 0))

	pushN(o, 0, 6)
	if n := strings.Count(buf.String(), "outbox full"); n != 1 {
		t.Errorf("expected one overflow log, got %d:\n%s", n, buf.String())
	}

	o.drain()
	pushN(o, 0, 3)
	if n := strings.Count(buf.String(), "outbox full"); n != 2 {
		t.Errorf("expected overflow log to re-arm after drain, got %d", n)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(10, nil)
	o.push(bufferedMsg{
		topic:    TopicSystem,
		payload:  []byte(`{"system":{}}`),
		qos:      1,
		retained: true,
	})

	got, _ := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != `{"system":{}}` || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
