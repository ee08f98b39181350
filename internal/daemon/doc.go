// Package daemon coordinates the long-running cfb8d process.
//
// It wires configuration, the session handler, the unix socket acceptor, the
// metrics collector, and the optional HTTP status API into a single lifecycle
// with flock-based locking to prevent multiple instances. Bind failures are
// returned to the caller; everything that happens on an individual
// connection stays inside the acceptor.
//
// Keep orchestration logic here: protocol and cipher work belong to the
// session and engine packages while the daemon focuses on startup, shutdown,
// and status reporting.
package daemon
