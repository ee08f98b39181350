// Package main hosts the cfb8d CLI entrypoint and command graph.
//
// The Cobra command tree runs the AES-128-CFB8 daemon in the foreground,
// launches and stops it as a background process, reports its status through
// the loopback HTTP API, and streams stdin to stdout through the daemon with
// the encrypt and decrypt commands. Configuration resolution and socket
// discovery live here so subcommands only deal with their own flags.
package main
