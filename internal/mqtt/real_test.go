package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	open         bool
	token        *fakeToken
	published    []published
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func newTestPublisher(open bool) (*RealPublisher, *fakeClient, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	c := &fakeClient{open: open}
	p := &RealPublisher{client: c, logger: logger, outbox: newOutbox(bufferCapacity, logger)}
	if open {
		p.onConnect()
	}
	return p, c, &buf
}

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRealPublisherConnected(t *testing.T) {
	p, c, _ := newTestPublisher(true)

	if err := p.PublishTelemetry(control.Cycle{Seq: 1, Time: testTime}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishFault(fault.Event{Timestamp: testTime, Type: fault.EventFaultDetected, State: fault.StateFaulted}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: testTime, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		topic    string
		qos      byte
		retained bool
	}{
		{TopicTelemetry, 0, false},
		{TopicFault, 1, false},
		{TopicSystem, 1, true},
	}
	if len(c.published) != len(want) {
		t.Fatalf("published %d messages, want %d", len(c.published), len(want))
	}
	for i, w := range want {
		got := c.published[i]
		if got.topic != w.topic || got.qos != w.qos || got.retained != w.retained {
			t.Errorf("message %d: got %s qos=%d retained=%v, want %+v", i, got.topic, got.qos, got.retained, w)
		}
	}
	if !p.IsConnected() {
		t.Error("expected connected")
	}
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	p, c, buf := newTestPublisher(false)

	p.PublishTelemetry(control.Cycle{Seq: 7, Time: testTime})
	p.PublishFault(fault.Event{Timestamp: testTime, Type: fault.EventEmergencyStop, State: fault.StateFaulted})
	p.PublishSystem(SystemEvent{Timestamp: testTime, Event: "HEARTBEAT"})

	if len(c.published) != 0 {
		t.Fatalf("published %d messages while offline", len(c.published))
	}
	if p.IsConnected() {
		t.Error("expected disconnected")
	}

	c.open = true
	p.onConnect()

	if len(c.published) != 2 {
		t.Fatalf("replayed %d messages, want 2 (telemetry is not buffered)", len(c.published))
	}
	if c.published[0].topic != TopicFault || c.published[1].topic != TopicSystem {
		t.Errorf("replay order: %s, %s", c.published[0].topic, c.published[1].topic)
	}
	var fp FaultPayload
	if err := json.Unmarshal(c.published[0].payload, &fp); err != nil {
		t.Fatal(err)
	}
	if fp.Fault.Event != "EMERGENCY_STOP" {
		t.Errorf("replayed event: %s", fp.Fault.Event)
	}
	if !strings.Contains(buf.String(), "replaying 2 buffered messages") {
		t.Errorf("missing replay log:\n%s", buf.String())
	}
}

func TestRealPublisherConnectionLost(t *testing.T) {
	p, c, buf := newTestPublisher(true)
	p.onConnectionLost(errors.New("eof"))

	if p.IsConnected() {
		t.Error("expected disconnected after connection lost")
	}
	p.PublishFault(fault.Event{Timestamp: testTime, Type: fault.EventFaultCleared, State: fault.StateNormal})
	if len(c.published) != 0 {
		t.Error("fault should be buffered, not published")
	}
	if !strings.Contains(buf.String(), "connection lost: eof") {
		t.Errorf("missing connection lost log:\n%s", buf.String())
	}
}

func TestRealPublisherErrors(t *testing.T) {
	p, c, _ := newTestPublisher(true)

	c.token = &fakeToken{timeout: true}
	if err := p.PublishFault(fault.Event{Timestamp: testTime}); !errors.Is(err, errPublishTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}

	broker := errors.New("not authorized")
	c.token = &fakeToken{err: broker}
	if err := p.PublishSystem(SystemEvent{Timestamp: testTime, Event: "STARTUP"}); !errors.Is(err, broker) {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestRealPublisherClose(t *testing.T) {
	p, c, _ := newTestPublisher(true)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !c.disconnected {
		t.Error("expected Disconnect")
	}
}
