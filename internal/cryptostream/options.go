package cryptostream

import "time"

const (
	DefaultDialTimeout = 2 * time.Second
	DefaultMaxChunk    = 8 * 1024
)

// Options tunes how a channel is dialed and used.
type Options struct {
	DialTimeout time.Duration
	// RoundTripTimeout bounds one request/response exchange; zero disables it.
	RoundTripTimeout time.Duration
	// MaxChunk caps a single request; larger buffers are sent in pieces.
	MaxChunk int
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.MaxChunk <= 0 {
		o.MaxChunk = DefaultMaxChunk
	}
	if o.RoundTripTimeout < 0 {
		o.RoundTripTimeout = 0
	}
	return o
}
