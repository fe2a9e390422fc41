package config

const (
	defaultFormat         = "avif"
	defaultQuality        = 30
	defaultSpeed          = 3
	defaultTimeoutSeconds = 120
	defaultRetries        = 2
	defaultListen         = ":8420"
	defaultMaxBodyMiB     = 64
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Convert: Convert{
			Format:  defaultFormat,
			Quality: defaultQuality,
			Speed:   defaultSpeed,
		},
		Remote: Remote{
			TimeoutSeconds: defaultTimeoutSeconds,
			Retries:        defaultRetries,
			Listen:         defaultListen,
			MaxBodyMiB:     defaultMaxBodyMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
