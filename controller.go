package ctrlr_kinematics

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

const (
	headerSize     = 8
	maxPayloadSize = 1 << 16

	defaultDialTimeout = 5 * time.Second
	defaultReadTimeout = 5 * time.Second
)

// ErrNoResponse marks a command that got no usable answer from the controller: the
// socket failed, timed out or returned a malformed frame.
var ErrNoResponse = errors.New("no response from controller")

// Link is the command channel the kinematics code needs: one blocking request and
// response per call.
type Link interface {
	Exchange(ctx context.Context, cmd Command, payload []byte, layout Layout) (Reply, error)
}

// ControllerConfig addresses a controller command socket.
type ControllerConfig struct {
	Host        string
	Port        int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Address returns host:port.
func (c ControllerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Controller owns the command socket of a robot controller. Every message on it is
// framed as [command uint32][payload length uint32][payload], little-endian.
type Controller struct {
	mu          sync.Mutex // serializes whole exchanges
	conn        net.Conn
	address     string
	readTimeout time.Duration
	logger      logging.Logger

	// redial reopens the socket after a failed exchange left the stream out of sync.
	// nil for controllers built from an existing connection.
	redial func(ctx context.Context) (net.Conn, error)
	closed bool
}

// DialController connects to the command port described by cfg.
func DialController(ctx context.Context, cfg ControllerConfig, logger logging.Logger) (*Controller, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	dial := func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", cfg.Address())
		if err != nil {
			return nil, errors.Wrapf(err, "can't connect to controller (%s)", cfg.Address())
		}
		return conn, nil
	}
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("Connected to controller command socket at %s", cfg.Address())

	c := NewController(conn, cfg.ReadTimeout, logger)
	c.redial = func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		return dial(ctx)
	}
	return c, nil
}

// NewController wraps an established connection.
func NewController(conn net.Conn, readTimeout time.Duration, logger logging.Logger) *Controller {
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}
	return &Controller{
		conn:        conn,
		address:     conn.RemoteAddr().String(),
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// send writes one framed command. Callers hold c.mu.
func (c *Controller) send(ctx context.Context, cmd Command, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		return errors.New("controller connection was lost")
	}
	if !cmd.Known() {
		return errors.Errorf("unknown controller command %d", uint32(cmd))
	}
	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:], uint32(cmd))
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(payload)))
	copy(frame[headerSize:], payload)

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return errors.Wrapf(err, "failed to send %s", cmd)
	}
	return nil
}

// receive reads one framed response for cmd and decodes it against layout. Callers hold c.mu.
func (c *Controller) receive(ctx context.Context, cmd Command, layout Layout) (Reply, error) {
	if c.conn == nil {
		return Reply{}, errors.New("controller connection was lost")
	}
	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Reply{}, err
	}

	header, err := goutils.ReadBytes(ctx, c.conn, headerSize)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "failed to read %s header", cmd)
	}
	got := Command(binary.LittleEndian.Uint32(header[0:]))
	size := binary.LittleEndian.Uint32(header[4:])
	if size > maxPayloadSize {
		return Reply{}, errors.Errorf("invalid payload size %d for %s", size, got)
	}
	payload, err := goutils.ReadBytes(ctx, c.conn, int(size))
	if err != nil {
		return Reply{}, errors.Wrapf(err, "failed to read %s payload", cmd)
	}
	if got != cmd {
		return Reply{}, errors.Errorf("expected response to %s, got %s", cmd, got)
	}
	return layout.Decode(payload)
}

// Exchange sends a command and waits for its response while holding the socket, so
// concurrent callers are queued rather than interleaved. Transport and framing failures wrap
// ErrNoResponse.
func (c *Controller) Exchange(ctx context.Context, cmd Command, payload []byte, layout Layout) (Reply, error) {
	if !cmd.Known() {
		return Reply{}, errors.Errorf("unknown controller command %d", uint32(cmd))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return Reply{}, noResponse(err)
	}
	if err := c.send(ctx, cmd, payload); err != nil {
		c.dropConnection(err)
		return Reply{}, noResponse(err)
	}
	reply, err := c.receive(ctx, cmd, layout)
	if err != nil {
		c.dropConnection(err)
		return Reply{}, noResponse(err)
	}
	c.logger.Debugf("%s on %s answered with status %d", cmd, c.address, reply.Status)
	return reply, nil
}

// noResponse marks cause as ErrNoResponse, keeping its text.
func noResponse(cause error) error {
	return errors.Wrap(ErrNoResponse, cause.Error())
}

func (c *Controller) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.closed {
		return errors.New("controller connection is closed")
	}
	if c.redial == nil {
		return errors.New("controller connection was lost")
	}
	c.logger.Debugf("Reconnecting to controller at %s", c.address)
	conn, err := c.redial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// dropConnection discards a socket whose framing can no longer be trusted.
func (c *Controller) dropConnection(cause error) {
	if c.conn == nil {
		return
	}
	c.logger.Warnf("Dropping controller connection to %s: %v", c.address, cause)
	goutils.UncheckedError(c.conn.Close())
	c.conn = nil
}

// Address returns the remote address of the command socket.
func (c *Controller) Address() string {
	return c.address
}

// Close closes the command socket.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
