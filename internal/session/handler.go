package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"cfb8d/internal/engine"
	"cfb8d/internal/logging"
	"cfb8d/internal/protocol"
)

// DefaultChunkSize bounds a single read from the client.
const DefaultChunkSize = 8 * 1024

// Handler serves the session protocol on accepted connections.
type Handler struct {
	// ChunkSize bounds each read and therefore each response frame.
	ChunkSize int
	// HandshakeTimeout limits the wait for the handshake; zero waits forever.
	HandshakeTimeout time.Duration
	// IdleTimeout limits the wait for each request chunk; zero waits forever.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Observer    Observer
}

type connection struct {
	id       string
	conn     net.Conn
	logger   *slog.Logger
	observer Observer
	state    State
}

func (c *connection) transition(next State) {
	c.logger.Debug("session state changed",
		logging.String("from", c.state.String()),
		logging.String("to", next.String()),
	)
	c.state = next
}

// Serve runs one connection to completion. A client that closes its side
// after any number of complete exchanges yields a nil error; handshake,
// transport, and cipher failures are returned classified. Canceling ctx
// closes conn.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) error {
	id, ok := logging.ConnIDFromContext(ctx)
	if !ok || id == "" {
		id = uuid.NewString()
	}
	c := &connection{
		id:       id,
		conn:     conn,
		logger:   logging.NewComponentLogger(h.Logger, "session").With(logging.String(logging.FieldConnID, id)),
		observer: h.observer(),
		state:    StateAccepted,
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := h.serve(ctx, c)
	c.transition(StateClosed)
	if ctx.Err() != nil && err != nil && !isClassifiedFailure(err) {
		c.logger.Debug("session interrupted by shutdown", logging.Error(err))
		return nil
	}
	return err
}

func (h *Handler) serve(ctx context.Context, c *connection) error {
	c.transition(StateHandshaking)
	if h.HandshakeTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.HandshakeTimeout))
	}
	sess, err := protocol.ReadHandshake(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Peer closed before sending anything: a liveness probe.
			c.logger.Debug("connection closed before handshake")
			return nil
		}
		if ctx.Err() == nil {
			c.observer.HandshakeFailed(err)
		}
		return err
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	eng, err := engine.ForSession(sess)
	if err != nil {
		c.observer.HandshakeFailed(err)
		return err
	}

	c.logger = c.logger.With(logging.String(logging.FieldDirection, sess.Direction.String()))
	c.transition(StateStreaming)
	c.logger.Info("session opened",
		logging.String(logging.FieldEventType, "session_opened"),
		logging.String("remote", remoteLabel(c.conn)),
	)
	c.observer.SessionOpened(c.id, sess)

	started := time.Now()
	total, err := h.stream(c, eng)
	c.observer.SessionClosed(c.id, sess, err)
	if err == nil {
		c.logger.Info("session closed",
			logging.String(logging.FieldEventType, "session_closed"),
			logging.Int64("bytes", total),
			logging.Duration("duration", time.Since(started)),
		)
	}
	return err
}

func (h *Handler) stream(c *connection, eng *engine.Engine) (int64, error) {
	chunk := h.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	in := make([]byte, chunk)
	out := make([]byte, chunk)
	var total int64
	dir := eng.Direction()

	for {
		if h.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(h.IdleTimeout))
		}
		n, readErr := c.conn.Read(in)
		if n > 0 {
			if _, err := eng.Update(out[:n], in[:n]); err != nil {
				return total, err
			}
			c.observer.BytesProcessed(dir, n)
			if err := protocol.WriteFrame(c.conn, out[:n]); err != nil {
				return total, err
			}
			total += int64(n)
			c.logger.Debug("processed chunk", logging.Int("bytes", n))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("%w: read request: %w", protocol.ErrChannelIO, readErr)
		}
	}
}

func (h *Handler) observer() Observer {
	if h.Observer == nil {
		return nopObserver{}
	}
	return h.Observer
}

// isClassifiedFailure reports errors caused by the peer rather than by the
// connection being torn down during shutdown.
func isClassifiedFailure(err error) bool {
	switch protocol.Kind(err) {
	case protocol.KindInvalidDirection, protocol.KindProtocolViolation, protocol.KindCipherFailure:
		return true
	default:
		return false
	}
}

func remoteLabel(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}
