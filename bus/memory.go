package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-process bus. Messages are delivered JSON encoded to subscribers of the same
// topic. Published messages are only kept when the bus was built WithRecording.
type Memory struct {
	mu          sync.Mutex
	closed      bool
	record      bool
	advertised  map[string]bool
	published   map[string][]interface{}
	subscribers map[string][]func([]byte)
	services    map[string]ServiceHandler
}

// MemoryOption configures a Memory bus.
type MemoryOption func(*Memory)

// WithRecording keeps every published message for Published and PublishCount. Retention is
// unbounded, so it is meant for tests.
func WithRecording() MemoryOption {
	return func(m *Memory) {
		m.record = true
	}
}

// NewMemory returns an empty in-process bus.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		advertised:  map[string]bool{},
		published:   map[string][]interface{}{},
		subscribers: map[string][]func([]byte){},
		services:    map[string]ServiceHandler{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type memoryPublisher struct {
	bus   *Memory
	topic string
}

func (p *memoryPublisher) Topic() string {
	return p.topic
}

func (p *memoryPublisher) Publish(msg interface{}) error {
	return p.bus.deliver(p.topic, msg)
}

// Advertise implements Bus.
func (m *Memory) Advertise(topic string) (Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.advertised[topic] = true
	return &memoryPublisher{bus: m, topic: topic}, nil
}

// Subscribe implements Bus.
func (m *Memory) Subscribe(topic string, handler func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.subscribers[topic] = append(m.subscribers[topic], handler)
	return nil
}

// HandleService implements Bus.
func (m *Memory) HandleService(name string, handler ServiceHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.services[name]; ok {
		return errors.Errorf("service %q already has a handler", name)
	}
	m.services[name] = handler
	return nil
}

// Close implements Bus.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) deliver(topic string, msg interface{}) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.record {
		m.published[topic] = append(m.published[topic], msg)
	}
	subs := append(([]func([]byte))(nil), m.subscribers[topic]...)
	m.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encoding message for %s", topic)
	}
	for _, sub := range subs {
		sub(data)
	}
	return nil
}

// Inject delivers msg to the topic's subscribers as if another node had published it.
func (m *Memory) Inject(topic string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	subs := append(([]func([]byte))(nil), m.subscribers[topic]...)
	m.mu.Unlock()

	for _, sub := range subs {
		sub(data)
	}
	return nil
}

// Call invokes a service handler.
func (m *Memory) Call(ctx context.Context, name string, request interface{}) (Response, error) {
	m.mu.Lock()
	handler, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return Response{}, errors.Errorf("no service named %q", name)
	}

	var data []byte
	if request != nil {
		var err error
		if data, err = json.Marshal(request); err != nil {
			return Response{}, err
		}
	}
	return handler(ctx, data), nil
}

// Published returns every message published on topic so far. It is empty unless the bus records.
func (m *Memory) Published(topic string) []interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interface{}(nil), m.published[topic]...)
}

// PublishCount is the total number of messages published on every topic.
func (m *Memory) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msgs := range m.published {
		n += len(msgs)
	}
	return n
}

// Advertised reports whether topic has been advertised.
func (m *Memory) Advertised(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertised[topic]
}

// Services lists the registered service names.
func (m *Memory) Services() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	return names
}
