package protocol

import (
	"errors"
	"fmt"
	"io"
)

const (
	KeySize = 16
	IVSize  = 16

	// HandshakeSize is dir(1) + key(16) + iv(16).
	HandshakeSize = 1 + KeySize + IVSize
)

// Session is the immutable parameter set negotiated by a handshake.
type Session struct {
	Direction Direction
	Key       [KeySize]byte
	IV        [IVSize]byte
}

// NewSession copies key and iv into a Session after validating their sizes.
func NewSession(dir Direction, key, iv []byte) (Session, error) {
	if !dir.Valid() {
		return Session{}, fmt.Errorf("%w: %d", ErrInvalidDirection, uint8(dir))
	}
	if len(key) != KeySize {
		return Session{}, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return Session{}, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	s := Session{Direction: dir}
	copy(s.Key[:], key)
	copy(s.IV[:], iv)
	return s, nil
}

// MarshalHandshake returns the 33 byte handshake for s.
func (s Session) MarshalHandshake() [HandshakeSize]byte {
	var buf [HandshakeSize]byte
	buf[0] = byte(s.Direction)
	copy(buf[1:1+KeySize], s.Key[:])
	copy(buf[1+KeySize:], s.IV[:])
	return buf
}

// WriteHandshake sends the handshake for s in a single write.
func WriteHandshake(w io.Writer, s Session) error {
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, uint8(s.Direction))
	}
	buf := s.MarshalHandshake()
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("%w: write handshake: %w", ErrChannelIO, err)
	}
	return nil
}

// ReadHandshake reads exactly HandshakeSize bytes from r and decodes them.
// The direction byte is validated only after the full handshake arrived, so
// a short read is always reported as ErrIncompleteHandshake.
func ReadHandshake(r io.Reader) (Session, error) {
	var buf [HandshakeSize]byte
	if n, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Session{}, fmt.Errorf("%w: received %d of %d bytes: %w", ErrIncompleteHandshake, n, HandshakeSize, err)
		}
		return Session{}, fmt.Errorf("%w: read handshake: %w", ErrIncompleteHandshake, err)
	}
	dir, err := ParseDirection(buf[0])
	if err != nil {
		return Session{}, err
	}
	s := Session{Direction: dir}
	copy(s.Key[:], buf[1:1+KeySize])
	copy(s.IV[:], buf[1+KeySize:])
	return s, nil
}
