// Package cryptostream wraps an io.Reader or io.Writer so every byte passing
// through is transformed by the cfb8d daemon.
//
// Each Reader or Writer owns one daemon connection (a channel) negotiated
// with a direction, key, and IV. Reader decrypts by default and Writer
// encrypts by default; the WithDirection constructors flip that. Every Read
// or Write performs a synchronous round trip: the bytes go to the daemon and
// the transformed bytes of exactly the same length come back before the call
// returns. Cipher state lives in the daemon, so the output is identical no
// matter how the caller chunks its reads and writes.
package cryptostream
