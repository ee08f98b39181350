// Package protocol defines the wire format spoken between stream adapters and
// the cfb8d daemon over the local unix socket.
//
// A connection starts with a fixed 33 byte handshake (direction, key, IV).
// After that the initiator sends raw chunks and the daemon answers each chunk
// it reads with a length-prefixed frame carrying the transformed bytes. The
// length prefix is a 4 byte big-endian count; the daemon never emits an empty
// frame.
//
// The package also owns the error taxonomy shared by both ends. Every error
// produced by the adapter or the daemon wraps one of the sentinels declared
// in errors.go so callers can classify failures with errors.Is or Kind.
package protocol
