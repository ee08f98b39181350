package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// FrameHeaderSize is the size of the big-endian length prefix.
const FrameHeaderSize = 4

// WriteFrame writes the length prefix and payload in one buffer so a frame is
// never interleaved with a partial header on the wire.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty response frame", ErrProtocolViolation)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: frame of %d bytes exceeds length field", ErrProtocolViolation, len(payload))
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %w", ErrChannelIO, err)
	}
	return nil
}

// ReadFrameHeader reads a frame length prefix.
func ReadFrameHeader(r io.Reader) (uint32, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: truncated frame header", ErrProtocolViolation)
		}
		return 0, fmt.Errorf("%w: read frame header: %w", ErrChannelIO, err)
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// ReadFrame reads one response frame into dst and returns the payload length.
// A frame announcing more bytes than dst can hold, an empty frame, or a
// payload cut short by the peer is a protocol violation.
func ReadFrame(r io.Reader, dst []byte) (int, error) {
	length, err := ReadFrameHeader(r)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, fmt.Errorf("%w: empty response frame", ErrProtocolViolation)
	}
	if uint64(length) > uint64(len(dst)) {
		return 0, fmt.Errorf("%w: frame of %d bytes exceeds %d outstanding", ErrProtocolViolation, length, len(dst))
	}
	n, err := io.ReadFull(r, dst[:length])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("%w: frame truncated after %d of %d bytes", ErrProtocolViolation, n, length)
		}
		return n, fmt.Errorf("%w: read frame payload: %w", ErrChannelIO, err)
	}
	return n, nil
}
