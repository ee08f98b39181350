package protocol

import "fmt"

// Direction selects whether a session encrypts or decrypts.
type Direction uint8

const (
	Decrypt Direction = 0
	Encrypt Direction = 1
)

// ParseDirection validates a handshake direction byte.
func ParseDirection(value byte) (Direction, error) {
	switch Direction(value) {
	case Decrypt, Encrypt:
		return Direction(value), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidDirection, value)
	}
}

func (d Direction) String() string {
	switch d {
	case Decrypt:
		return "decrypt"
	case Encrypt:
		return "encrypt"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the two recognized directions.
func (d Direction) Valid() bool {
	return d == Decrypt || d == Encrypt
}
