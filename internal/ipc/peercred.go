package ipc

import (
	"log/slog"
	"strconv"

	"cfb8d/internal/logging"
)

// Credentials identifies the process on the other end of a unix socket.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// key is the admission limiter bucket for these credentials.
func (c Credentials) key() string {
	return strconv.FormatUint(uint64(c.UID), 10)
}

func (c Credentials) attrs() []any {
	return []any{
		slog.Int(logging.FieldPeerPID, int(c.PID)),
		slog.Uint64(logging.FieldPeerUID, uint64(c.UID)),
	}
}
