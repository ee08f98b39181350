package protocol

import "errors"

var (
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrIncompleteHandshake = errors.New("incomplete handshake")
	ErrChannelIO           = errors.New("channel i/o failure")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrCipherFailure       = errors.New("cipher failure")
	ErrBindFailure         = errors.New("bind failure")
)

// Error kinds reported in logs and metric labels.
const (
	KindInvalidDirection    = "invalid_direction"
	KindIncompleteHandshake = "incomplete_handshake"
	KindChannelIO           = "channel_io"
	KindProtocolViolation   = "protocol_violation"
	KindCipherFailure       = "cipher_failure"
	KindBindFailure         = "bind_failure"
	KindUnknown             = "unknown"
)

// Kind classifies err against the protocol taxonomy. A nil error has no kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDirection):
		return KindInvalidDirection
	case errors.Is(err, ErrIncompleteHandshake):
		return KindIncompleteHandshake
	case errors.Is(err, ErrProtocolViolation):
		return KindProtocolViolation
	case errors.Is(err, ErrCipherFailure):
		return KindCipherFailure
	case errors.Is(err, ErrBindFailure):
		return KindBindFailure
	case errors.Is(err, ErrChannelIO):
		return KindChannelIO
	default:
		return KindUnknown
	}
}
