package cryptostream

import (
	"context"
	"io"
	"net"

	"cfb8d/internal/protocol"
)

// Reader transforms everything read from an inner reader through the daemon.
type Reader struct {
	inner io.Reader
	ch    *channel
}

// NewReader returns a decrypting Reader over inner.
func NewReader(ctx context.Context, inner io.Reader, socketPath string, key, iv []byte, opts Options) (*Reader, error) {
	return NewReaderWithDirection(ctx, inner, socketPath, protocol.Decrypt, key, iv, opts)
}

// NewReaderWithDirection returns a Reader whose channel runs in dir.
func NewReaderWithDirection(ctx context.Context, inner io.Reader, socketPath string, dir protocol.Direction, key, iv []byte, opts Options) (*Reader, error) {
	sess, err := protocol.NewSession(dir, key, iv)
	if err != nil {
		return nil, err
	}
	conn, err := Dial(ctx, socketPath, sess, opts)
	if err != nil {
		return nil, err
	}
	return ReaderFromConn(inner, conn, opts), nil
}

// ReaderFromConn takes ownership of an already handshaken connection.
func ReaderFromConn(inner io.Reader, conn net.Conn, opts Options) *Reader {
	return &Reader{inner: inner, ch: newChannel(conn, opts)}
}

// Read reads once from the inner reader and returns the same number of
// transformed bytes. At most MaxChunk bytes are read so every call costs
// exactly one round trip. An inner read of zero bytes skips the daemon
// entirely. The inner error, io.EOF included, is returned alongside the
// bytes read.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.ch.isReleased() {
		return 0, ErrClosed
	}
	p = p[:min(len(p), r.ch.maxChunk)]
	n, err := r.inner.Read(p)
	if n > 0 {
		if rtErr := r.ch.roundTrip(p[:n], p[:n]); rtErr != nil {
			return 0, rtErr
		}
	}
	return n, err
}

// Close releases the daemon connection. The inner reader is left open.
func (r *Reader) Close() error {
	return r.ch.close()
}

// Detach returns the inner reader and the daemon connection without closing
// either. The Reader is unusable afterwards; conn is nil if it was closed.
func (r *Reader) Detach() (io.Reader, net.Conn) {
	return r.inner, r.ch.detach()
}
