package tor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default control port settings.
const (
	// DefaultControlPort is the control port of a system Tor.
	DefaultControlPort = 9051

	// DefaultBrowserControlPort is the control port of Tor Browser.
	DefaultBrowserControlPort = 9151

	// DefaultDialTimeout bounds the TCP connect to the control port.
	DefaultDialTimeout = 10 * time.Second

	// DefaultBuildTimeout bounds how long one circuit build may take.
	DefaultBuildTimeout = 60 * time.Second

	// circEventBuffer is the number of CIRC events queued during a build.
	circEventBuffer = 128
)

// Conn is one control port session.
type Conn struct {
	conn net.Conn
	text *textproto.Conn

	logger       *slog.Logger
	dialTimeout  time.Duration
	buildTimeout time.Duration

	// mu serializes commands: one request, one reply.
	mu      sync.Mutex
	replies chan *reply

	// done is closed when the reader goroutine exits; readErr says why.
	done    chan struct{}
	readErr error

	sinkMu sync.Mutex
	sink   chan circEvent

	subscribed bool
	closeOnce  sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger for session diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithDialTimeout bounds the TCP connect.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.dialTimeout = d
	}
}

// WithBuildTimeout bounds each circuit build. Zero waits until Tor reports
// the circuit built or failed.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.buildTimeout = d
	}
}

// ControlAddresses returns the addresses to try for host and port.
// Port 0 means the system Tor port, then the Tor Browser port.
func ControlAddresses(host string, port int) []string {
	if port != 0 {
		return []string{net.JoinHostPort(host, strconv.Itoa(port))}
	}
	return []string{
		net.JoinHostPort(host, strconv.Itoa(DefaultControlPort)),
		net.JoinHostPort(host, strconv.Itoa(DefaultBrowserControlPort)),
	}
}

// isValidControlAddress checks that address is "host:port" with a non-empty
// host and a port in 1..65535.
func isValidControlAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Dial connects to the first of addresses that accepts a connection.
// The session is not yet authenticated.
func Dial(ctx context.Context, addresses []string, opts ...Option) (*Conn, error) {
	if len(addresses) == 0 {
		return nil, ErrInvalidControlAddress
	}

	probe := newConn(nil, opts...)

	var errs []error
	for _, addr := range addresses {
		if !isValidControlAddress(addr) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidControlAddress, addr))
			continue
		}

		dctx, cancel := context.WithTimeout(ctx, probe.dialTimeout)
		var d net.Dialer
		nc, err := d.DialContext(dctx, "tcp", addr)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s", ErrTimeout, addr)
			} else {
				err = fmt.Errorf("%w: %s: %w", ErrCannotConnect, addr, err)
			}
			errs = append(errs, err)
			continue
		}

		probe.logger.Debug("connected to control port", "address", addr)
		return NewConn(nc, opts...), nil
	}
	return nil, errors.Join(errs...)
}

// newConn applies options to a Conn without starting it.
func newConn(nc net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:         nc,
		dialTimeout:  DefaultDialTimeout,
		buildTimeout: DefaultBuildTimeout,
		replies:      make(chan *reply, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// NewConn starts a session on an established connection.
func NewConn(nc net.Conn, opts ...Option) *Conn {
	c := newConn(nc, opts...)
	c.text = textproto.NewConn(nc)
	go c.readLoop()
	return c
}

// Close ends the session. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.text.Close()
	})
	return err
}

// readLoop routes replies to the waiting command and CIRC events to the
// active build.
func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		r, err := readReply(&c.text.Reader)
		if err != nil {
			c.readErr = err
			return
		}
		if r.code() == eventCode {
			c.dispatchEvent(r)
			continue
		}
		select {
		case c.replies <- r:
		default:
			c.logger.Warn("dropping unsolicited control reply", "code", r.code())
		}
	}
}

// closedErr explains why the session ended.
func (c *Conn) closedErr() error {
	if c.readErr != nil {
		return fmt.Errorf("%w: %w", ErrConnClosed, c.readErr)
	}
	return ErrConnClosed
}

// command sends line and waits for its reply. A non-2xx reply is returned
// together with a *ReplyError.
func (c *Conn) command(ctx context.Context, line string) (*reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, c.closedErr()
	default:
	}

	verb, _, _ := strings.Cut(line, " ")
	c.logger.Debug("control command", "verb", verb)

	if err := c.text.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", verb, err)
	}

	select {
	case r := <-c.replies:
		return r, r.err()
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		// The late reply would be read by the next command.
		_ = c.Close() //nolint:errcheck // session is unusable either way
		return nil, ctx.Err()
	}
}
