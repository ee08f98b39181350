// Package ipc owns the daemon's unix domain socket: binding it safely,
// accepting connections, and dialing it from clients.
//
// Listen guards the socket with a flock-style lock file next to it so two
// daemons can never share a path while orphaned sockets from a crashed run are
// still cleaned up. Server runs the accept loop, tags every connection with a
// UUID, applies optional admission limits (connection cap and a per-peer-uid
// token bucket), and hands each connection to a Handler on its own goroutine.
// Connection errors are logged here and never reach the process.
//
// Dial and WrapDialError are shared by the stream adapter and the CLI so
// connection failures read the same everywhere.
package ipc
