// Package bus connects the bridge to a publish/subscribe message bus.
package bus

import (
	"context"

	"github.com/pkg/errors"
)

// Publisher publishes messages on one topic.
type Publisher interface {
	Topic() string
	Publish(msg interface{}) error
}

// Response is the result of a service call.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ServiceHandler answers a service request. request is the JSON encoded request body, which may be
// empty.
type ServiceHandler func(ctx context.Context, request []byte) Response

// Bus is a message bus. Topics are advertised once at configuration time and stay valid until
// Close.
type Bus interface {
	Advertise(topic string) (Publisher, error)
	Subscribe(topic string, handler func(data []byte)) error
	HandleService(name string, handler ServiceHandler) error
	Close() error
}

// ErrClosed is returned after Close.
var ErrClosed = errors.New("bus is closed")

// StreamChannel is one configured output stream. Every publish is gated on Enabled, so handlers
// feeding a disabled stream still run but publish nothing.
type StreamChannel struct {
	Name    string
	Enabled bool
	Pub     Publisher
	// Pub2 is the optional second output of streams that produce two related messages.
	Pub2 Publisher
}

// NewStreamChannel advertises topic, and topic2 when non-empty, if enabled.
func NewStreamChannel(b Bus, name string, enabled bool, topic, topic2 string) (*StreamChannel, error) {
	ch := &StreamChannel{Name: name, Enabled: enabled}
	if !enabled {
		return ch, nil
	}
	var err error
	if ch.Pub, err = b.Advertise(topic); err != nil {
		return nil, errors.Wrapf(err, "advertising %s", topic)
	}
	if topic2 != "" {
		if ch.Pub2, err = b.Advertise(topic2); err != nil {
			return nil, errors.Wrapf(err, "advertising %s", topic2)
		}
	}
	return ch, nil
}

// Publish sends msg on the primary topic when the channel is enabled.
func (ch *StreamChannel) Publish(msg interface{}) error {
	if ch == nil || !ch.Enabled || ch.Pub == nil {
		return nil
	}
	return ch.Pub.Publish(msg)
}

// Publish2 sends msg on the secondary topic when the channel is enabled.
func (ch *StreamChannel) Publish2(msg interface{}) error {
	if ch == nil || !ch.Enabled || ch.Pub2 == nil {
		return nil
	}
	return ch.Pub2.Publish(msg)
}
