package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ilp/internal/ilp"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ilp/internal/spool"
)

// Dialer opens a new ILP connection.
type Dialer func(ctx context.Context) (*ilp.Sender, error)

// Options controls batching and reconnection.
type Options struct {
	Table             string
	BatchSize         int
	FlushInterval     time.Duration
	ReconnectInterval time.Duration
	WriteTimeout      time.Duration // 0 disables the write deadline
	ReplayLimit       int
	InitBufferSize    int
}

// OptionsFromConfig builds Options from the relay and ilp config sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Table:             cfg.Relay.Table,
		BatchSize:         cfg.Relay.BatchSize,
		FlushInterval:     cfg.GetFlushInterval(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		WriteTimeout:      cfg.GetWriteTimeout(),
		ReplayLimit:       cfg.Relay.ReplayLimit,
		InitBufferSize:    cfg.ILP.InitBufferSize,
	}
}

// DialerFromConfig returns a Dialer for the ilp config section.
func DialerFromConfig(cfg *config.Config) Dialer {
	return func(ctx context.Context) (*ilp.Sender, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
		defer cancel()
		return ilp.Connect(ctx, ilp.Config{
			Host:           cfg.ILP.Host,
			Port:           cfg.ILP.Port,
			Interface:      cfg.ILP.Interface,
			InitBufferSize: cfg.ILP.InitBufferSize,
		})
	}
}

// Stats is a point-in-time view of relay activity.
type Stats struct {
	Connected        bool      `json:"connected"`
	PendingRows      int       `json:"pending_rows"`
	PendingBytes     int       `json:"pending_bytes"`
	RowsWritten      uint64    `json:"rows_written"`
	MessagesRejected uint64    `json:"messages_rejected"`
	Flushes          uint64    `json:"flushes"`
	FlushFailures    uint64    `json:"flush_failures"`
	Reconnects       uint64    `json:"reconnects"`
	SpooledBatches   int       `json:"spooled_batches"`
	SpooledRows      int       `json:"spooled_rows"`
	LastFlush        time.Time `json:"last_flush,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
}

// Relay turns device state messages into ILP rows.
//
// Rows go into the connected Sender and are flushed when BatchSize rows are
// pending or on every FlushInterval tick. When a flush leaves the Sender
// unusable the pending lines are drained to the spool, the Sender is closed,
// and the relay reconnects on a later tick. Spooled batches are replayed
// oldest first after every reconnect.
//
// While disconnected, rows collect in an offline Buffer which is moved to the
// spool on each tick. Without a spool they stay in memory and are requeued
// on reconnect.
//
// Thread Safety: All methods are safe for concurrent use.
type Relay struct {
	opts   Options
	dial   Dialer
	spool  spool.Repository
	logger *logging.Logger

	mu       sync.Mutex
	sender   *ilp.Sender
	offline  *ilp.Buffer
	lastDial time.Time
	dialing  bool
	closed   bool
	stats    Stats

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a relay. repo may be nil to keep undelivered rows in memory.
func New(opts Options, dial Dialer, repo spool.Repository, logger *logging.Logger) *Relay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		opts:    opts,
		dial:    dial,
		spool:   repo,
		logger:  logger,
		offline: ilp.NewBuffer(opts.InitBufferSize),
		done:    make(chan struct{}),
	}
}

// Start connects to the server and starts the flush loop.
//
// A failed initial connect is logged, not returned: the relay starts offline
// and keeps retrying on the reconnect interval.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.mu.Unlock()

	r.reconnect(ctx)

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick(ctx)
		case <-r.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage is the MQTT handler for device state topics.
func (r *Relay) HandleMessage(topic string, payload []byte) error {
	msg, err := ParseStateMessage(topic, payload)
	if err != nil {
		r.reject(err)
		return err
	}
	return r.Write(context.Background(), msg)
}

// Write adds one state message as a row and flushes if the batch is full.
func (r *Relay) Write(ctx context.Context, msg *StateMessage) error {
	point, skipped, err := msg.Point(r.opts.Table)
	if err != nil {
		r.reject(err)
		return err
	}
	if len(skipped) > 0 {
		r.logger.Warn("skipping non-scalar state values",
			"device_id", msg.DeviceID,
			"keys", skipped,
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if r.sender != nil {
		err = r.sender.WriteMetric(point)
	} else {
		err = r.offline.WriteMetric(point)
	}
	if err != nil {
		r.stats.MessagesRejected++
		r.stats.LastError = err.Error()
		return fmt.Errorf("encoding state for %s: %w", msg.DeviceID, err)
	}
	r.stats.RowsWritten++

	if r.sender != nil && r.sender.PendingRows() >= r.opts.BatchSize {
		return r.flushLocked(ctx)
	}
	return nil
}

func (r *Relay) reject(err error) {
	r.mu.Lock()
	r.stats.MessagesRejected++
	r.stats.LastError = err.Error()
	r.mu.Unlock()
}

// Flush sends pending rows now. When offline it moves them to the spool.
func (r *Relay) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Relay) flushLocked(ctx context.Context) error {
	if r.sender == nil {
		r.spoolOfflineLocked(ctx)
		return nil
	}
	if r.sender.PendingRows() == 0 {
		return nil
	}

	if r.opts.WriteTimeout > 0 {
		if err := r.sender.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout)); err != nil {
			return r.flushFailedLocked(ctx, err)
		}
	}
	if err := r.sender.Flush(); err != nil {
		return r.flushFailedLocked(ctx, err)
	}

	r.stats.Flushes++
	r.stats.LastFlush = time.Now().UTC()
	return nil
}

// flushFailedLocked records a failed flush. If the connection is unusable the
// pending lines are moved out of the sender and the sender is closed.
func (r *Relay) flushFailedLocked(ctx context.Context, err error) error {
	r.stats.FlushFailures++
	r.stats.LastError = err.Error()

	if !r.sender.MustClose() {
		return err
	}

	payload, rows, drainErr := r.sender.Drain()
	if drainErr != nil {
		r.logger.Error("draining failed sender", "error", drainErr)
	}
	r.closeSenderLocked()

	if rows > 0 {
		r.park(ctx, payload, rows)
	}

	r.logger.Warn("ilp connection lost, rows parked for replay",
		"rows", rows,
		"error", err,
	)
	return err
}

// park keeps drained lines for later delivery: in the spool if there is
// one, otherwise in the offline buffer.
func (r *Relay) park(ctx context.Context, payload []byte, rows int) {
	if r.spool != nil {
		_, err := r.spool.Save(ctx, payload, rows)
		if err == nil {
			return
		}
		r.logger.Error("spooling batch failed, keeping in memory", "rows", rows, "error", err)
	}
	if err := r.offline.AppendLines(payload, rows); err != nil {
		r.logger.Error("dropping undeliverable rows", "rows", rows, "error", err)
	}
}

func (r *Relay) spoolOfflineLocked(ctx context.Context) {
	if r.spool == nil || r.offline.Rows() == 0 {
		return
	}
	payload, rows, err := r.offline.Drain()
	if err != nil {
		r.logger.Error("draining offline buffer", "error", err)
		return
	}
	r.park(ctx, payload, rows)
}

// parkPendingLocked moves complete rows still held by the sender to the
// spool. A partial row is dropped.
func (r *Relay) parkPendingLocked(ctx context.Context) {
	if r.sender == nil {
		return
	}
	r.sender.DiscardRow()
	payload, rows, err := r.sender.Drain()
	if err != nil {
		r.logger.Error("draining sender", "error", err)
		return
	}
	if rows > 0 {
		r.park(ctx, payload, rows)
	}
}

func (r *Relay) closeSenderLocked() {
	if r.sender == nil {
		return
	}
	if err := r.sender.Close(); err != nil {
		r.logger.Debug("closing ilp sender", "error", err)
	}
	r.sender = nil
}

// Tick runs one maintenance cycle. When connected it flushes and then
// replays up to ReplayLimit spooled batches. Otherwise it spools offline
// rows and reconnects once the reconnect interval has passed.
func (r *Relay) Tick(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.sender != nil {
		if err := r.flushLocked(ctx); err != nil {
			r.logger.Warn("periodic flush failed", "error", err)
		} else if r.sender != nil {
			r.replaySpoolLocked(ctx)
		}
		r.mu.Unlock()
		return
	}
	r.spoolOfflineLocked(ctx)
	due := time.Since(r.lastDial) >= r.opts.ReconnectInterval
	r.mu.Unlock()

	if due {
		r.reconnect(ctx)
	}
}

// reconnect dials outside the lock so writers are not blocked by a slow
// connect, then installs the sender and replays parked rows.
func (r *Relay) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.sender != nil || r.dialing {
		r.mu.Unlock()
		return
	}
	r.dialing = true
	r.lastDial = time.Now()
	r.mu.Unlock()

	sender, err := r.dial(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialing = false

	if err != nil {
		r.stats.LastError = err.Error()
		r.logger.Warn("ilp connect failed", "error", err)
		return
	}
	if r.closed {
		_ = sender.Close() //nolint:errcheck // Relay already shut down
		return
	}

	sender.SetLogger(r.logger)
	r.sender = sender
	r.stats.Reconnects++
	r.logger.Info("ilp connected")

	r.replayLocked(ctx)
}

// replayLocked delivers spooled batches oldest first, then requeues rows
// kept in memory. Batches beyond ReplayLimit are left for later ticks.
func (r *Relay) replayLocked(ctx context.Context) {
	if !r.replaySpoolLocked(ctx) {
		return
	}

	if r.offline.Rows() == 0 {
		return
	}
	payload, rows, err := r.offline.Drain()
	if err != nil {
		r.logger.Error("draining offline buffer", "error", err)
		return
	}
	if err := r.sender.Requeue(payload, rows); err != nil {
		r.logger.Error("requeueing offline rows", "rows", rows, "error", err)
		_ = r.offline.AppendLines(payload, rows) //nolint:errcheck // Lines came from Drain
	}
}

// replaySpoolLocked replays at most ReplayLimit spooled batches. A batch is
// deleted only after its flush succeeded. It returns false when a replay
// failed and the remaining batches were left in the spool.
func (r *Relay) replaySpoolLocked(ctx context.Context) bool {
	if r.spool == nil {
		return true
	}
	batches, err := r.spool.Oldest(ctx, r.opts.ReplayLimit)
	if err != nil {
		r.logger.Error("reading spool", "error", err)
		return true
	}
	for _, b := range batches {
		if !r.replayBatchLocked(ctx, b) {
			return false
		}
	}
	return true
}

func (r *Relay) replayBatchLocked(ctx context.Context, b spool.Batch) bool {
	if err := r.sender.Requeue(b.Payload, b.Rows); err != nil {
		// Unreadable batch; it would block the queue forever.
		r.logger.Error("discarding corrupt spool batch", "id", b.ID, "error", err)
		_ = r.spool.Delete(ctx, b.ID) //nolint:errcheck // Best effort
		return true
	}
	if r.opts.WriteTimeout > 0 {
		_ = r.sender.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout)) //nolint:errcheck // Flush reports the failure
	}
	if err := r.sender.Flush(); err != nil {
		r.stats.FlushFailures++
		r.stats.LastError = err.Error()
		r.logger.Warn("replaying spool batch failed", "id", b.ID, "error", err)
		// The batch is still in the spool; drop the in-flight copy.
		_, _, _ = r.sender.Drain() //nolint:errcheck // Discarding duplicate
		if r.sender.MustClose() {
			r.closeSenderLocked()
		}
		return false
	}

	r.stats.Flushes++
	r.stats.LastFlush = time.Now().UTC()
	if err := r.spool.Delete(ctx, b.ID); err != nil {
		r.logger.Error("deleting replayed batch", "id", b.ID, "error", err)
	}
	r.logger.Info("replayed spool batch", "id", b.ID, "rows", b.Rows)
	return true
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats(ctx context.Context) Stats {
	r.mu.Lock()
	s := r.stats
	s.Connected = r.sender != nil
	if r.sender != nil {
		s.PendingRows = r.sender.PendingRows() + r.offline.Rows()
		s.PendingBytes = r.sender.PendingSize() + r.offline.Len()
	} else {
		s.PendingRows = r.offline.Rows()
		s.PendingBytes = r.offline.Len()
	}
	r.mu.Unlock()

	if r.spool != nil {
		batches, rows, err := r.spool.Count(ctx)
		if err != nil {
			r.logger.Warn("counting spool", "error", err)
		}
		s.SpooledBatches, s.SpooledRows = batches, rows
	}
	return s
}

// Close stops the flush loop, makes a final flush and closes the sender.
// Rows that cannot be delivered are spooled. It is idempotent.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.flushLocked(ctx)
	r.parkPendingLocked(ctx)
	r.spoolOfflineLocked(ctx)
	r.closeSenderLocked()

	if pending := r.offline.Rows(); pending > 0 {
		r.logger.Warn("relay closed with undelivered rows", "rows", pending)
	}
	if err != nil && !errors.Is(err, ilp.ErrSocket) {
		return err
	}
	return nil
}
