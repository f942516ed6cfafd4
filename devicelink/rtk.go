package devicelink

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-gnss/rtcm/rtcm3"
	"github.com/pkg/errors"

	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/utils"
)

// Correction stream types accepted by OpenClientConnection.
const (
	CorrectionRTCM3 = "RTCM3"
	CorrectionUBLOX = "UBLOX"
)

const (
	dialTimeout       = 5 * time.Second
	clientWriteBudget = time.Second
)

// ParseCorrectionSpec splits "TYPE:host:port" into the stream type and a dialable address.
func ParseCorrectionSpec(spec string) (string, string, error) {
	kind, addr, ok := strings.Cut(spec, ":")
	if !ok || addr == "" {
		return "", "", errors.Errorf("correction source %q is not of the form TYPE:host:port", spec)
	}
	kind = strings.ToUpper(kind)
	if kind != CorrectionRTCM3 && kind != CorrectionUBLOX {
		return "", "", errors.Errorf("unsupported correction type %q", kind)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", errors.Wrapf(err, "correction source %q", spec)
	}
	return kind, addr, nil
}

// correctionClient forwards corrections from a TCP source to the device.
type correctionClient struct {
	conn    net.Conn
	workers utils.StoppableWorkers
}

func dialCorrections(spec string, forward func([]byte) error, logger logging.Logger) (*correctionClient, error) {
	kind, addr, err := ParseCorrectionSpec(spec)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to correction source %s", addr)
	}

	c := &correctionClient{conn: conn}
	c.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		var err error
		if kind == CorrectionRTCM3 {
			err = forwardRTCM3(ctx, conn, forward)
		} else {
			err = forwardRaw(ctx, conn, forward)
		}
		if err != nil && ctx.Err() == nil {
			logger.Errorw("correction stream ended", "source", addr, "error", err)
		}
	})
	return c, nil
}

// forwardRTCM3 passes on only frames the scanner recognizes.
func forwardRTCM3(ctx context.Context, r io.Reader, forward func([]byte) error) error {
	scanner := rtcm3.NewScanner(r)
	for ctx.Err() == nil {
		msg, err := scanner.NextMessage()
		if err != nil {
			return err
		}
		if _, unknown := msg.(rtcm3.MessageUnknown); unknown {
			continue
		}
		frame := rtcm3.EncapsulateMessage(msg)
		if err := forward(frame.Serialize()); err != nil {
			return err
		}
	}
	return nil
}

func forwardRaw(ctx context.Context, r io.Reader, forward func([]byte) error) error {
	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			if err := forward(append([]byte(nil), buf[:n]...)); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *correctionClient) close() {
	//nolint:errcheck
	c.conn.Close()
	c.workers.Stop()
}

// baseServer relays correction frames produced by the device to every connected TCP client.
type baseServer struct {
	listener net.Listener
	logger   logging.Logger
	workers  utils.StoppableWorkers

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

func listenBase(addr string, logger logging.Logger) (*baseServer, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, errors.Wrapf(err, "base listen address %q", addr)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	s := &baseServer{listener: listener, logger: logger, clients: map[net.Conn]struct{}{}}
	s.workers = utils.NewStoppableWorkers(s.acceptLoop)
	logger.Infow("serving RTK corrections", "address", listener.Addr().String())
	return s, nil
}

// Addr is the address the server is listening on.
func (s *baseServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *baseServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Errorw("accepting correction client", "error", err)
			}
			return
		}
		s.logger.Infow("correction client connected", "remote", conn.RemoteAddr().String())
		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()
	}
}

func (s *baseServer) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *baseServer) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		//nolint:errcheck
		conn.SetWriteDeadline(time.Now().Add(clientWriteBudget))
		if _, err := conn.Write(frame); err != nil {
			s.logger.Infow("dropping correction client", "remote", conn.RemoteAddr().String(), "error", err)
			//nolint:errcheck
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *baseServer) close() {
	//nolint:errcheck
	s.listener.Close()
	s.workers.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		//nolint:errcheck
		conn.Close()
		delete(s.clients, conn)
	}
}
