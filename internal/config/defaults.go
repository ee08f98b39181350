package config

const (
	defaultSocketName              = "cfb8d.sock"
	defaultDataDir                 = "~/.local/share/cfb8d"
	defaultLogDir                  = "~/.local/share/cfb8d/logs"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultAPIBind                 = "127.0.0.1:7488"
	defaultChunkSize               = 8 * 1024
	maxChunkSize                   = 1 << 20
	defaultSocketMode              = "0600"
	defaultHandshakeTimeoutSeconds = 10
	defaultPeerRateBurst           = 16
	defaultDialTimeoutSeconds      = 2

	// Portable sun_path limit (macOS allows 104 bytes including NUL).
	maxSocketPathLength = 103
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SocketPath: defaultSocketPath(),
			LogDir:     defaultLogDir,
		},
		API: API{
			Enabled: true,
			Bind:    defaultAPIBind,
		},
		Server: Server{
			ChunkSize:               defaultChunkSize,
			SocketMode:              defaultSocketMode,
			HandshakeTimeoutSeconds: defaultHandshakeTimeoutSeconds,
			PeerRateBurst:           defaultPeerRateBurst,
		},
		Client: Client{
			DialTimeoutSeconds: defaultDialTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
