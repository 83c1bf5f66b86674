package ilp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"
)

// InaddrAny is the default local interface: let the OS pick the source address.
const InaddrAny = "0.0.0.0"

// Transport owns one connected TCP socket.
//
// Once a send fails the transport is poisoned: MustClose reports true, no
// further I/O is attempted, and the only useful operation left is Close.
//
// Thread Safety: A Transport must not be used from multiple goroutines at once.
type Transport struct {
	conn      net.Conn
	mustClose bool
}

// newTransport wraps an already connected socket.
func newTransport(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Dial resolves host and port, optionally binds a local interface, and
// connects. It blocks until connected or failed; ctx carries the caller's
// deadline.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - netInterface: Local address to bind, "" or InaddrAny for any
//   - host: Server host name or IP address
//   - port: Port number or service name (e.g. "9009")
//
// Returns:
//   - *Transport: Connected transport
//   - error: wraps ErrCouldNotResolveAddr for lookup failures, ErrSocket for
//     connection failures
func Dial(ctx context.Context, netInterface, host, port string) (*Transport, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrCouldNotResolveAddr)
	}

	portNum, err := net.DefaultResolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return nil, fmt.Errorf("%w: port %q: %w", ErrCouldNotResolveAddr, port, err)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: host %q: %w", ErrCouldNotResolveAddr, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: host %q has no addresses", ErrCouldNotResolveAddr, host)
	}

	dialer := &net.Dialer{}
	var local net.IP
	if netInterface != "" && netInterface != InaddrAny {
		local, err = resolveLocal(ctx, netInterface)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = &net.TCPAddr{IP: local}
	}

	var lastErr error
	for _, addr := range addrs {
		// A bound IPv4 interface cannot reach an IPv6 peer and vice versa.
		if local != nil && (local.To4() == nil) != (addr.IP.To4() == nil) {
			continue
		}
		target := net.JoinHostPort(addr.String(), strconv.Itoa(portNum))
		conn, dialErr := dialer.DialContext(ctx, "tcp", target)
		if dialErr != nil {
			lastErr = dialErr
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if noDelayErr := tcpConn.SetNoDelay(true); noDelayErr != nil {
				conn.Close() //nolint:errcheck // Best effort cleanup on error path
				return nil, fmt.Errorf("%w: configuring socket: %w", ErrSocket, noDelayErr)
			}
		}
		return newTransport(conn), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no address of %q matches the family of interface %s", host, netInterface)
	}
	return nil, fmt.Errorf("%w: connecting to %s: %w", ErrSocket, net.JoinHostPort(host, port), lastErr)
}

// resolveLocal turns the bind interface into an IP address.
func resolveLocal(ctx context.Context, netInterface string) (net.IP, error) {
	if ip := net.ParseIP(netInterface); ip != nil {
		return ip, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, netInterface)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %q: %w", ErrCouldNotResolveAddr, netInterface, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: interface %q has no addresses", ErrCouldNotResolveAddr, netInterface)
	}
	return addrs[0].IP, nil
}

// Send writes all of p to the socket, continuing after short writes.
//
// Any write error is fatal: the transport is marked must-close and the error
// is returned wrapping ErrSocket. Bytes may have reached the server before
// the failure.
func (t *Transport) Send(p []byte) error {
	if t.conn == nil {
		return fmt.Errorf("%w: transport is closed", ErrSocket)
	}
	if t.mustClose {
		return fmt.Errorf("%w: connection failed earlier and must be closed", ErrSocket)
	}

	for len(p) > 0 {
		n, err := t.conn.Write(p)
		p = p[n:]
		if err != nil {
			t.mustClose = true
			return classifyWriteError(err)
		}
		if n == 0 {
			t.mustClose = true
			return fmt.Errorf("%w: %w", ErrSocket, io.ErrNoProgress)
		}
	}
	return nil
}

// classifyWriteError wraps a socket write failure, naming peer resets.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: connection closed by peer: %w", ErrSocket, err)
	}
	return fmt.Errorf("%w: write failed: %w", ErrSocket, err)
}

// SetWriteDeadline bounds how long a Send may block. A zero value removes
// the deadline. A send that hits the deadline poisons the transport.
func (t *Transport) SetWriteDeadline(deadline time.Time) error {
	if t.conn == nil {
		return fmt.Errorf("%w: transport is closed", ErrSocket)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: setting write deadline: %w", ErrSocket, err)
	}
	return nil
}

// MustClose reports whether a previous send failed. It performs no I/O.
func (t *Transport) MustClose() bool {
	return t.mustClose
}

// RemoteAddr returns the server address, or "" once closed.
func (t *Transport) RemoteAddr() string {
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

// Close releases the socket. It is idempotent and safe on a failed transport.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("%w: closing socket: %w", ErrSocket, err)
	}
	return nil
}
