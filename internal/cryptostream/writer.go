package cryptostream

import (
	"context"
	"io"
	"net"
	"sync"

	"cfb8d/internal/protocol"
)

// Writer transforms everything written to it through the daemon before
// passing it to an inner writer.
type Writer struct {
	inner io.Writer
	ch    *channel

	mu  sync.Mutex
	buf []byte
}

// NewWriter returns an encrypting Writer over inner.
func NewWriter(ctx context.Context, inner io.Writer, socketPath string, key, iv []byte, opts Options) (*Writer, error) {
	return NewWriterWithDirection(ctx, inner, socketPath, protocol.Encrypt, key, iv, opts)
}

// NewWriterWithDirection returns a Writer whose channel runs in dir.
func NewWriterWithDirection(ctx context.Context, inner io.Writer, socketPath string, dir protocol.Direction, key, iv []byte, opts Options) (*Writer, error) {
	sess, err := protocol.NewSession(dir, key, iv)
	if err != nil {
		return nil, err
	}
	conn, err := Dial(ctx, socketPath, sess, opts)
	if err != nil {
		return nil, err
	}
	return WriterFromConn(inner, conn, opts), nil
}

// WriterFromConn takes ownership of an already handshaken connection.
func WriterFromConn(inner io.Writer, conn net.Conn, opts Options) *Writer {
	return &Writer{inner: inner, ch: newChannel(conn, opts)}
}

// Write transforms p and writes all of it to the inner writer. It reports
// len(p) only once the inner writer accepted every transformed byte.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if cap(w.buf) < len(p) {
		w.buf = make([]byte, len(p))
	}
	out := w.buf[:len(p)]
	if err := w.ch.roundTrip(out, p); err != nil {
		return 0, err
	}
	if err := writeFull(w.inner, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush flushes the inner writer when it supports flushing.
func (w *Writer) Flush() error {
	if f, ok := w.inner.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close releases the daemon connection. The inner writer is left open.
func (w *Writer) Close() error {
	return w.ch.close()
}

// Detach returns the inner writer and the daemon connection without closing
// either. The Writer is unusable afterwards; conn is nil if it was closed.
func (w *Writer) Detach() (io.Writer, net.Conn) {
	return w.inner, w.ch.detach()
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
