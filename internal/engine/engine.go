package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"cfb8d/internal/protocol"
)

// Engine is one session's AES-128-CFB8 transform.
type Engine struct {
	direction protocol.Direction
	stream    cipher.Stream
}

// New keys an engine for the given direction.
func New(dir protocol.Direction, key [protocol.KeySize]byte, iv [protocol.IVSize]byte) (*Engine, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: %d", protocol.ErrInvalidDirection, uint8(dir))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: init aes: %w", protocol.ErrCipherFailure, err)
	}
	var stream cipher.Stream
	if dir == protocol.Encrypt {
		stream = NewCFB8Encrypter(block, iv[:])
	} else {
		stream = NewCFB8Decrypter(block, iv[:])
	}
	return &Engine{direction: dir, stream: stream}, nil
}

// ForSession keys an engine from a negotiated session.
func ForSession(s protocol.Session) (*Engine, error) {
	return New(s.Direction, s.Key, s.IV)
}

// Direction reports the direction the engine was keyed for.
func (e *Engine) Direction() protocol.Direction {
	return e.direction
}

// Update transforms src into dst and returns len(src). dst may alias src.
func (e *Engine) Update(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, fmt.Errorf("%w: output buffer holds %d of %d bytes", protocol.ErrCipherFailure, len(dst), len(src))
	}
	e.stream.XORKeyStream(dst[:len(src)], src)
	return len(src), nil
}
