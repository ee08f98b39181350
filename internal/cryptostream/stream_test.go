package cryptostream_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"cfb8d/internal/cryptostream"
	"cfb8d/internal/engine"
	"cfb8d/internal/ipc"
	"cfb8d/internal/logging"
	"cfb8d/internal/protocol"
	"cfb8d/internal/session"
	"cfb8d/internal/testsupport"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func startDaemon(t *testing.T, chunkSize int) string {
	t.Helper()
	path := testsupport.SocketPath(t)
	handler := &session.Handler{ChunkSize: chunkSize, Logger: logging.NewNop()}
	srv, err := ipc.NewServer(context.Background(), path, handler, logging.NewNop(), ipc.Options{})
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon-backed test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return path
}

func localTransform(t *testing.T, dir protocol.Direction, input []byte) []byte {
	t.Helper()
	sess, err := protocol.NewSession(dir, testKey, testIV)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	eng, err := engine.ForSession(sess)
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	out := make([]byte, len(input))
	if _, err := eng.Update(out, input); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return out
}

func TestWriterThenReaderRoundTrip(t *testing.T) {
	socket := startDaemon(t, 0)
	ctx := context.Background()
	plain := testsupport.Payload(40_000)

	var sealed bytes.Buffer
	w, err := cryptostream.NewWriter(ctx, &sealed, socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for off := 0; off < len(plain); off += 777 {
		end := min(off+777, len(plain))
		n, err := w.Write(plain[off:end])
		if err != nil {
			t.Fatalf("Write at %d: %v", off, err)
		}
		if n != end-off {
			t.Fatalf("expected Write to report %d, got %d", end-off, n)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}
	if want := localTransform(t, protocol.Encrypt, plain); !bytes.Equal(sealed.Bytes(), want) {
		t.Fatal("daemon ciphertext differs from local engine output")
	}

	r, err := cryptostream.NewReader(ctx, bytes.NewReader(sealed.Bytes()), socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(iotest.HalfReader(r))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip did not restore plaintext")
	}
}

func TestReaderPreservesPartialReadsAndEOF(t *testing.T) {
	socket := startDaemon(t, 0)
	cipherText := localTransform(t, protocol.Encrypt, []byte("HELLO"))

	inner := iotest.DataErrReader(iotest.OneByteReader(bytes.NewReader(cipherText)))
	r, err := cryptostream.NewReader(context.Background(), inner, socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var out []byte
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if n > 1 {
			t.Fatalf("expected partial reads of at most 1 byte, got %d", n)
		}
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if string(out) != "HELLO" {
		t.Fatalf("expected HELLO, got %q", out)
	}
}

func TestMirroredDirections(t *testing.T) {
	socket := startDaemon(t, 0)
	ctx := context.Background()

	r, err := cryptostream.NewReaderWithDirection(ctx, strings.NewReader("HELLO"), socket, protocol.Encrypt, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewReaderWithDirection: %v", err)
	}
	sealed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	_ = r.Close()

	var plain bytes.Buffer
	w, err := cryptostream.NewWriterWithDirection(ctx, &plain, socket, protocol.Decrypt, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewWriterWithDirection: %v", err)
	}
	if _, err := w.Write(sealed); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = w.Close()
	if plain.String() != "HELLO" {
		t.Fatalf("expected HELLO, got %q", plain.String())
	}
}

func TestSmallDaemonChunksAreAccumulated(t *testing.T) {
	socket := startDaemon(t, 3)
	plain := testsupport.Payload(1000)

	var sealed bytes.Buffer
	w, err := cryptostream.NewWriter(context.Background(), &sealed, socket, testKey, testIV, cryptostream.Options{MaxChunk: 64})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := localTransform(t, protocol.Encrypt, plain); !bytes.Equal(sealed.Bytes(), want) {
		t.Fatal("multi-frame response was not reassembled correctly")
	}
}

func TestWriterFlushDelegates(t *testing.T) {
	socket := startDaemon(t, 0)
	var sink bytes.Buffer
	bw := bufio.NewWriter(&sink)
	w, err := cryptostream.NewWriter(context.Background(), bw, socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte("buffered")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sink.Len() != 0 {
		t.Fatal("expected bufio writer to hold data before Flush")
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sink.Len() != len("buffered") {
		t.Fatalf("expected %d flushed bytes, got %d", len("buffered"), sink.Len())
	}
}

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }

func TestWriterShortInnerWrite(t *testing.T) {
	socket := startDaemon(t, 0)
	w, err := cryptostream.NewWriter(context.Background(), zeroWriter{}, socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	n, err := w.Write([]byte("data"))
	if !errors.Is(err, io.ErrShortWrite) || n != 0 {
		t.Fatalf("expected io.ErrShortWrite with n=0, got n=%d err=%v", n, err)
	}
}

func TestCloseIsIdempotentAndDetachTransfersOwnership(t *testing.T) {
	socket := startDaemon(t, 0)
	ctx := context.Background()

	r, err := cryptostream.NewReader(ctx, strings.NewReader("x"), socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, cryptostream.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}

	var out bytes.Buffer
	w, err := cryptostream.NewWriter(ctx, &out, socket, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write([]byte("HE")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	inner, conn := w.Detach()
	if inner != &out || conn == nil {
		t.Fatal("Detach should return the inner writer and the channel")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close after Detach should be a no-op, got %v", err)
	}

	resumed := cryptostream.WriterFromConn(&out, conn, cryptostream.Options{})
	defer resumed.Close()
	if _, err := resumed.Write([]byte("LLO")); err != nil {
		t.Fatalf("Write on resumed writer: %v", err)
	}
	if want := localTransform(t, protocol.Encrypt, []byte("HELLO")); !bytes.Equal(out.Bytes(), want) {
		t.Fatal("cipher state did not survive the ownership transfer")
	}
}

func TestDuplexUsesIndependentChannels(t *testing.T) {
	socket := startDaemon(t, 0)
	inbound := localTransform(t, protocol.Encrypt, []byte("ping"))
	var wire bytes.Buffer
	wire.Write(inbound)

	d, err := cryptostream.NewDuplex(context.Background(), &wire, socket, testKey, testIV, testKey, testIV, cryptostream.Options{})
	if err != nil {
		t.Fatalf("NewDuplex: %v", err)
	}
	defer d.Close()

	got := make([]byte, 4)
	if _, err := io.ReadFull(d, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("expected ping, got %q", got)
	}
	if _, err := d.Write([]byte("pong")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := localTransform(t, protocol.Encrypt, []byte("pong")); !bytes.Equal(wire.Bytes(), want) {
		t.Fatalf("unexpected outbound ciphertext %x", wire.Bytes())
	}
}

func TestDialFailureIsChannelIO(t *testing.T) {
	_, err := cryptostream.NewReader(context.Background(), strings.NewReader(""), testsupport.SocketPath(t), testKey, testIV, cryptostream.Options{})
	if !errors.Is(err, protocol.ErrChannelIO) {
		t.Fatalf("expected ErrChannelIO, got %v", err)
	}
}

func TestConstructorValidatesKeyMaterial(t *testing.T) {
	_, err := cryptostream.NewWriter(context.Background(), io.Discard, "/unused", []byte("short"), testIV, cryptostream.Options{})
	if err == nil {
		t.Fatal("expected key length error")
	}
}

// fakeDaemon reads one request and answers with the given raw response.
func fakeDaemon(t *testing.T, response []byte) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	go func() {
		defer server.Close()
		buf := make([]byte, 64)
		if _, err := server.Read(buf); err != nil {
			return
		}
		if len(response) > 0 {
			_, _ = server.Write(response)
		}
	}()
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	conn := fakeDaemon(t, frame([]byte("too long")))
	r := cryptostream.ReaderFromConn(strings.NewReader("abc"), conn, cryptostream.Options{})
	if _, err := r.Read(make([]byte, 3)); !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestReaderAccumulatesSplitFrames(t *testing.T) {
	response := append(frame([]byte("ab")), frame([]byte("c"))...)
	conn := fakeDaemon(t, response)
	r := cryptostream.ReaderFromConn(strings.NewReader("xyz"), conn, cryptostream.Options{})
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "abc" {
		t.Fatalf("expected abc, got %q", buf[:n])
	}
}

func TestReaderDaemonHangupIsChannelIO(t *testing.T) {
	conn := fakeDaemon(t, nil)
	r := cryptostream.ReaderFromConn(strings.NewReader("abc"), conn, cryptostream.Options{})
	if _, err := r.Read(make([]byte, 3)); !errors.Is(err, protocol.ErrChannelIO) {
		t.Fatalf("expected ErrChannelIO, got %v", err)
	}
}

func TestZeroByteInnerReadSkipsRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	r := cryptostream.ReaderFromConn(strings.NewReader(""), client, cryptostream.Options{})
	n, err := r.Read(make([]byte, 8))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("expected 0, io.EOF without touching the channel, got %d, %v", n, err)
	}
}

func TestLargeRequestAboveSocketBuffers(t *testing.T) {
	socket := startDaemon(t, 8*1024)
	plain := testsupport.Payload(8 << 20)

	var sealed bytes.Buffer
	w, err := cryptostream.NewWriter(context.Background(), &sealed, socket, testKey, testIV, cryptostream.Options{MaxChunk: 8 << 20})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	done := make(chan error, 1)
	go func() {
		_, err := w.Write(plain)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("Write of 8 MiB in a single request did not complete")
	}
	if want := localTransform(t, protocol.Encrypt, plain); !bytes.Equal(sealed.Bytes(), want) {
		t.Fatal("ciphertext mismatch for single large request")
	}
}

func TestReaderReadsAtMostMaxChunk(t *testing.T) {
	socket := startDaemon(t, 0)
	plain := testsupport.Payload(100)
	cipherText := localTransform(t, protocol.Encrypt, plain)

	r, err := cryptostream.NewReader(context.Background(), bytes.NewReader(cipherText), socket, testKey, testIV, cryptostream.Options{MaxChunk: 16})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 16 {
			t.Fatalf("expected reads of at most 16 bytes, got %d", n)
		}
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(out, plain) {
		t.Fatal("chunked reads did not restore plaintext")
	}
}

func TestCloseAbortsStalledRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, server) }()
	t.Cleanup(func() { _ = server.Close() })

	w := cryptostream.WriterFromConn(io.Discard, client, cryptostream.Options{})
	written := make(chan error, 1)
	go func() {
		_, err := w.Write([]byte("never answered"))
		written <- err
	}()
	time.Sleep(100 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Close waited for the stalled round trip")
	}

	select {
	case err := <-written:
		if !errors.Is(err, protocol.ErrChannelIO) || !errors.Is(err, cryptostream.ErrClosed) {
			t.Fatalf("expected ErrChannelIO wrapping ErrClosed, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Write did not return after Close")
	}
}
