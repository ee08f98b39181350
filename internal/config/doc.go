// Package config loads, normalizes, and validates cfb8d configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// CFB8D_SOCKET. The Config type centralizes every knob the daemon and CLI
// need so the socket path, admission limits, and logging settings are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
