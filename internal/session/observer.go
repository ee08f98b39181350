package session

import "cfb8d/internal/protocol"

// Observer receives session lifecycle events. Implementations must be safe
// for concurrent use; every connection reports from its own goroutine.
type Observer interface {
	HandshakeFailed(err error)
	SessionOpened(id string, s protocol.Session)
	BytesProcessed(dir protocol.Direction, n int)
	SessionClosed(id string, s protocol.Session, err error)
}

type nopObserver struct{}

func (nopObserver) HandshakeFailed(error) {}
func (nopObserver) SessionOpened(string, protocol.Session) {}
func (nopObserver) BytesProcessed(protocol.Direction, int) {}
func (nopObserver) SessionClosed(string, protocol.Session, error) {}
