// Package engine binds the AES-128-CFB8 stream transform used by daemon
// sessions.
//
// An Engine is keyed once with a direction, key, and IV and then fed chunks
// through Update. Output length always equals input length and the feedback
// register carries across calls, so a payload split into arbitrary chunks
// produces the same bytes as the payload transformed in one call.
//
// Engines hold per-session state and must not be shared between connections.
package engine
