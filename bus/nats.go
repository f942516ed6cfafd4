package bus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/inertialsense/logging"
)

// NATSConfig configures a NATS backed bus.
type NATSConfig struct {
	URL    string
	Prefix string
	// ClientName is reported to the server.
	ClientName string
	// ServiceTimeout bounds each service handler invocation.
	ServiceTimeout time.Duration
}

// NATS publishes JSON encoded messages on subjects "<prefix>.<topic>" with '/' mapped to '.', and
// serves services with request/reply on "<prefix>.srv.<name>".
type NATS struct {
	conn   *nats.Conn
	cfg    NATSConfig
	logger logging.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// NewNATS connects to the server at cfg.URL.
func NewNATS(cfg NATSConfig, logger logging.Logger) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ServiceTimeout <= 0 {
		cfg.ServiceTimeout = 2 * time.Minute
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infow("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	}
	if cfg.ClientName != "" {
		opts = append(opts, nats.Name(cfg.ClientName))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", cfg.URL)
	}
	return &NATS{conn: conn, cfg: cfg, logger: logger}, nil
}

// Subject maps a topic onto a NATS subject under prefix.
func Subject(prefix, topic string) string {
	subject := strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// ServiceSubject is the request subject of a service.
func ServiceSubject(prefix, name string) string {
	return Subject(prefix, "srv/"+name)
}

type natsPublisher struct {
	conn    *nats.Conn
	topic   string
	subject string
}

func (p *natsPublisher) Topic() string {
	return p.topic
}

func (p *natsPublisher) Publish(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encoding message for %s", p.topic)
	}
	return p.conn.Publish(p.subject, data)
}

// Advertise implements Bus.
func (n *NATS) Advertise(topic string) (Publisher, error) {
	if n.isClosed() {
		return nil, ErrClosed
	}
	return &natsPublisher{conn: n.conn, topic: topic, subject: Subject(n.cfg.Prefix, topic)}, nil
}

// Subscribe implements Bus. handler runs on the NATS client's delivery goroutine.
func (n *NATS) Subscribe(topic string, handler func([]byte)) error {
	sub, err := n.conn.Subscribe(Subject(n.cfg.Prefix, topic), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", topic)
	}
	return n.track(sub)
}

// HandleService implements Bus.
func (n *NATS) HandleService(name string, handler ServiceHandler) error {
	sub, err := n.conn.Subscribe(ServiceSubject(n.cfg.Prefix, name), func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ServiceTimeout)
		defer cancel()
		resp := handler(ctx, msg.Data)
		data, err := json.Marshal(resp)
		if err != nil {
			n.logger.Errorw("encoding service response", "service", name, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			n.logger.Warnw("responding to service request", "service", name, "error", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "serving %s", name)
	}
	return n.track(sub)
}

func (n *NATS) track(sub *nats.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return multierr.Combine(ErrClosed, sub.Unsubscribe())
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATS) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Close implements Bus.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	var err error
	for _, sub := range subs {
		err = multierr.Combine(err, sub.Unsubscribe())
	}
	err = multierr.Combine(err, n.conn.Flush())
	n.conn.Close()
	return err
}
