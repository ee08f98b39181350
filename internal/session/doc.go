// Package session runs the per-connection state machine of the daemon:
// read the 33 byte handshake, key a cipher engine, then answer every chunk
// read from the client with one length-prefixed frame of transformed bytes
// until the client closes its side.
//
// A Handler is shared by every connection; the engine and buffers it creates
// belong to a single connection. Errors are classified with protocol.Kind and
// returned to the acceptor, which logs them and moves on.
package session
