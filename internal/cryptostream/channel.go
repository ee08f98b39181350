package cryptostream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"cfb8d/internal/ipc"
	"cfb8d/internal/protocol"
)

// ErrClosed is returned by operations on a closed or detached stream.
var ErrClosed = errors.New("cryptostream: stream closed")

// Dial connects to the daemon at socketPath and sends the handshake for sess.
// The caller owns the returned connection.
func Dial(ctx context.Context, socketPath string, sess protocol.Session, opts Options) (net.Conn, error) {
	opts = opts.withDefaults()
	conn, err := ipc.DialContext(ctx, socketPath, opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrChannelIO, ipc.WrapDialError(err, socketPath))
	}
	if err := protocol.WriteHandshake(conn, sess); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

const (
	channelOpen int32 = iota
	channelDetached
	channelClosed
)

// channel serializes round trips over one handshaken connection. Closing
// does not wait for an in-flight round trip; the pending I/O fails instead.
type channel struct {
	mu        sync.Mutex
	conn      net.Conn
	maxChunk  int
	rtTimeout time.Duration
	state     atomic.Int32
	req       []byte
}

func newChannel(conn net.Conn, opts Options) *channel {
	opts = opts.withDefaults()
	return &channel{conn: conn, maxChunk: opts.MaxChunk, rtTimeout: opts.RoundTripTimeout}
}

// roundTrip sends src to the daemon in pieces of at most maxChunk bytes and
// fills dst with the transformed bytes. dst may alias src.
func (c *channel) roundTrip(dst, src []byte) error {
	if len(dst) < len(src) {
		return fmt.Errorf("%w: output buffer holds %d of %d bytes", protocol.ErrCipherFailure, len(dst), len(src))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isReleased() {
		return ErrClosed
	}
	for off := 0; off < len(src); {
		end := min(off+c.maxChunk, len(src))
		if err := c.exchange(dst[off:end], src[off:end]); err != nil {
			if c.state.Load() == channelClosed {
				return fmt.Errorf("%w: %w", protocol.ErrChannelIO, ErrClosed)
			}
			return err
		}
		off = end
	}
	return nil
}

// exchange performs one request and collects response frames until the
// transformed byte count equals the request length. The daemon may answer a
// single request with several frames and stops reading once its replies
// back up, so the request is written from a second goroutine while frames
// are drained here.
func (c *channel) exchange(dst, src []byte) error {
	if c.rtTimeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.rtTimeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if cap(c.req) < len(src) {
		c.req = make([]byte, len(src))
	}
	req := c.req[:len(src)]
	copy(req, src)

	sent := make(chan error, 1)
	go func() {
		_, err := c.conn.Write(req)
		sent <- err
	}()

	for got := 0; got < len(req); {
		n, err := protocol.ReadFrame(c.conn, dst[got:len(req)])
		if err != nil {
			_ = c.conn.SetWriteDeadline(time.Now())
			<-sent
			_ = c.conn.SetWriteDeadline(time.Time{})
			return err
		}
		got += n
	}
	if err := <-sent; err != nil {
		return fmt.Errorf("%w: send request: %w", protocol.ErrChannelIO, err)
	}
	return nil
}

// detach hands the connection to the caller once any in-flight round trip
// has finished; later round trips fail.
func (c *channel) detach() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(channelOpen, channelDetached) {
		return nil
	}
	return c.conn
}

func (c *channel) isReleased() bool {
	return c.state.Load() != channelOpen
}

// close releases the connection exactly once without waiting for a round
// trip in progress.
func (c *channel) close() error {
	if !c.state.CompareAndSwap(channelOpen, channelClosed) {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("%w: close channel: %w", protocol.ErrChannelIO, err)
	}
	return nil
}
