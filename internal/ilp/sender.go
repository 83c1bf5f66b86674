package ilp

import (
	"context"
	"time"
)

// Config holds the connection parameters for a Sender.
type Config struct {
	// Host is the server host name or IP address.
	Host string

	// Port is a port number or service name. Default: "9009".
	Port string

	// Interface is the local address to bind. Default: InaddrAny.
	Interface string

	// InitBufferSize is the initial buffer capacity in bytes.
	// Default: DefaultInitBufferSize.
	InitBufferSize int
}

// DefaultPort is the conventional ILP-over-TCP port.
const DefaultPort = "9009"

// Logger is the optional logging interface for a Sender.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noCopy makes go vet flag accidental copies of a Sender.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Sender builds rows into a Buffer and ships them over a Transport.
//
// A Sender exclusively owns its buffer and socket for one connection. Use it
// by pointer only; Close releases both and is safe to call repeatedly.
//
// Thread Safety: A Sender is not safe for concurrent use. Give each
// goroutine its own Sender or serialise access.
type Sender struct {
	_ noCopy

	transport *Transport
	buffer    *Buffer
	logger    Logger
}

// Connect dials the server and returns a Sender with an empty buffer.
//
// Parameters:
//   - ctx: Context for cancellation and deadline of the connect only
//   - cfg: Connection parameters
//
// Returns:
//   - *Sender: Connected sender ready for rows
//   - error: wraps ErrCouldNotResolveAddr or ErrSocket
func Connect(ctx context.Context, cfg Config) (*Sender, error) {
	port := cfg.Port
	if port == "" {
		port = DefaultPort
	}
	iface := cfg.Interface
	if iface == "" {
		iface = InaddrAny
	}

	t, err := Dial(ctx, iface, cfg.Host, port)
	if err != nil {
		return nil, err
	}
	return newSender(t, cfg.InitBufferSize), nil
}

func newSender(t *Transport, initBufferSize int) *Sender {
	return &Sender{
		transport: t,
		buffer:    NewBuffer(initBufferSize),
	}
}

// SetLogger sets a logger for connection lifecycle events.
func (s *Sender) SetLogger(logger Logger) {
	s.logger = logger
}

// usable rejects calls on a closed or poisoned sender.
func (s *Sender) usable() error {
	if s == nil || s.buffer == nil {
		return apiErrorf("sender is closed")
	}
	if s.transport.MustClose() {
		return apiErrorf("sender must be closed after a socket error")
	}
	return nil
}

// Table starts a new row. See Buffer.Table.
func (s *Sender) Table(name string) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.Table(name)
}

// Symbol appends a symbol to the current row. See Buffer.Symbol.
func (s *Sender) Symbol(name, value string) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.Symbol(name, value)
}

// ColumnBool appends a boolean column.
func (s *Sender) ColumnBool(name string, value bool) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.ColumnBool(name, value)
}

// ColumnInt appends a 64-bit integer column.
func (s *Sender) ColumnInt(name string, value int64) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.ColumnInt(name, value)
}

// ColumnFloat appends a 64-bit float column.
func (s *Sender) ColumnFloat(name string, value float64) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.ColumnFloat(name, value)
}

// ColumnString appends a string column.
func (s *Sender) ColumnString(name, value string) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.ColumnString(name, value)
}

// At terminates the row with a timestamp in nanoseconds since the epoch.
func (s *Sender) At(timestampNanos int64) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.At(timestampNanos)
}

// AtNow terminates the row and lets the server assign the timestamp.
func (s *Sender) AtNow() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.AtNow()
}

// DiscardRow drops the row in progress, keeping all complete lines.
func (s *Sender) DiscardRow() {
	if s == nil || s.buffer == nil {
		return
	}
	s.buffer.DiscardRow()
}

// PendingSize returns the number of buffered bytes. It works in any state,
// including after a socket error, and returns 0 once closed.
func (s *Sender) PendingSize() int {
	if s == nil || s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// PendingRows returns the number of complete, unflushed lines.
func (s *Sender) PendingRows() int {
	if s == nil || s.buffer == nil {
		return 0
	}
	return s.buffer.Rows()
}

// Flush sends every complete line to the server.
//
// With no complete lines it does nothing. On success the buffer is cleared.
// On failure the buffer is left untouched, MustClose reports true, and the
// pending lines can be recovered with Drain for a new connection; the server
// may already have received some of them.
//
// Returns:
//   - error: ErrInvalidAPICall if a row is in progress or the sender is
//     closed or poisoned, ErrSocket if the write failed
func (s *Sender) Flush() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.buffer.InRow() {
		return apiErrorf("flush: row in progress; call At or AtNow first")
	}
	rows := s.buffer.Rows()
	if rows == 0 {
		return nil
	}

	size := s.buffer.Len()
	if err := s.transport.Send(s.buffer.Bytes()); err != nil {
		if s.logger != nil {
			s.logger.Warn("ilp flush failed",
				"server", s.transport.RemoteAddr(),
				"rows", rows,
				"bytes", size,
				"error", err,
			)
		}
		return err
	}
	s.buffer.Clear()

	if s.logger != nil {
		s.logger.Debug("ilp flushed", "rows", rows, "bytes", size)
	}
	return nil
}

// Drain takes all complete lines out of the buffer. It works after a socket
// error so unsent data can be moved to another connection with Requeue.
func (s *Sender) Drain() ([]byte, int, error) {
	if s == nil || s.buffer == nil {
		return nil, 0, apiErrorf("sender is closed")
	}
	return s.buffer.Drain()
}

// Requeue appends lines previously taken with Drain.
func (s *Sender) Requeue(payload []byte, rows int) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.AppendLines(payload, rows)
}

// SetWriteDeadline bounds how long the next flushes may block.
func (s *Sender) SetWriteDeadline(deadline time.Time) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.transport.SetWriteDeadline(deadline)
}

// MustClose reports whether the connection failed and the sender must be
// closed. It returns false once the sender has been closed.
func (s *Sender) MustClose() bool {
	if s == nil || s.transport == nil {
		return false
	}
	return s.transport.MustClose()
}

// Close releases the socket and the buffer. Unflushed lines are discarded.
// It is idempotent.
func (s *Sender) Close() error {
	if s == nil || s.transport == nil {
		return nil
	}
	pending := s.buffer.Len()
	err := s.transport.Close()
	s.transport = nil
	s.buffer = nil

	if s.logger != nil {
		s.logger.Debug("ilp sender closed", "discarded_bytes", pending)
	}
	return err
}
