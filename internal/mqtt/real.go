package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/ballbalancer/internal/control"
	"github.com/sweeney/ballbalancer/internal/fault"
)

// bufferCapacity bounds the fault and system messages held while offline.
const bufferCapacity = 100

var errPublishTimeout = errors.New("publish timeout")

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
// Fault and system messages published while the connection is down are
// buffered and replayed, oldest first, when it comes back. Telemetry is not.
type RealPublisher struct {
	client client
	logger *log.Logger

	mu        sync.Mutex
	outbox    *outbox
	connected bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying. The will tells the
// broker to publish a retained SHUTDOWN if the process vanishes.
func NewRealPublisher(broker string, logger *log.Logger) (*RealPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	p := &RealPublisher{
		logger: logger,
		outbox: newOutbox(bufferCapacity, logger),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("ballbalancer").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	c := paho.NewClient(opts)
	p.client = c
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// paho keeps retrying in the background; messages buffer until then.
		logger.Printf("mqtt: broker %s not reachable yet, retrying every 5s", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Printf("mqtt: connection lost: %v", err)
}

// onConnect replays buffered messages. The first connect finds the outbox empty.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connected = true
	pending, dropped := p.outbox.drain()
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Printf("mqtt: %d buffered messages lost while offline", dropped)
	}
	if len(pending) == 0 {
		return
	}
	p.logger.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
	// Replay runs on paho's callback goroutine; do not wait on tokens here.
	for _, m := range pending {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.client.IsConnectionOpen()
}

// send publishes msg, or buffers it when offline and keep is set.
func (p *RealPublisher) send(msg bufferedMsg, keep bool) error {
	p.mu.Lock()
	if !p.connected || !p.client.IsConnectionOpen() {
		if keep {
			p.outbox.push(msg)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishTelemetry sends a control cycle at QoS 0.
func (p *RealPublisher) PublishTelemetry(c control.Cycle) error {
	payload, err := FormatTelemetryPayload(c)
	if err != nil {
		return fmt.Errorf("format telemetry payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicTelemetry, payload: payload}, false)
}

// PublishFault sends a supervisor transition at QoS 1.
func (p *RealPublisher) PublishFault(e fault.Event) error {
	payload, err := FormatFaultPayload(e)
	if err != nil {
		return fmt.Errorf("format fault payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicFault, payload: payload, qos: 1}, true)
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}, true)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
