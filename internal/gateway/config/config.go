// Package config loads gateway configuration from the process environment.
// There are no flags and no config file: every setting is an env var with a
// documented default, following the same convention as the rest of the
// codebase (see common/environment).
package config

import (
	"time"

	"github.com/edimap/ecoledirecte-imap/common/environment"
)

// Config holds every tunable the gateway needs at startup.
type Config struct {
	// ListenAddr is the TCP address the IMAP acceptor binds.
	ListenAddr string

	// UpstreamBaseURL is the root of the upstream JSON API.
	UpstreamBaseURL string
	// UpstreamAPIVersion is sent as the "v" query parameter on every call.
	UpstreamAPIVersion string
	// UpstreamTimeout bounds each individual upstream HTTP request.
	UpstreamTimeout time.Duration
	// UpstreamMaxRetries bounds attempts per upstream call on transient
	// transport errors. Semantic failures (4xx, well-formed code != 200) are
	// never retried regardless of this value.
	UpstreamMaxRetries int

	// ReadBufferSize is the per-connection command read buffer, in bytes.
	ReadBufferSize int

	// MaxConnsPerMinute bounds accepted connections per remote address in a
	// one-minute fixed window. Zero disables the limiter.
	MaxConnsPerMinute int

	// HealthAddr is the optional TCP address for the /healthz and /status
	// HTTP endpoints. Empty disables the health server entirely.
	HealthAddr string

	// LogFormat selects the slog handler: "text" or "json".
	LogFormat string
}

// Load reads Config from the environment, applying the documented defaults
// for anything unset.
func Load() Config {
	return Config{
		ListenAddr: environment.StringOr("IMAP_LISTEN_ADDR", "localhost:1993"),

		UpstreamBaseURL:    environment.StringOr("UPSTREAM_BASE_URL", "https://api.ecoledirecte.com/"),
		UpstreamAPIVersion: environment.StringOr("UPSTREAM_API_VERSION", "4.43.0"),
		UpstreamTimeout:    environment.DurationOr("UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamMaxRetries: environment.IntOr("UPSTREAM_MAX_RETRIES", 3),

		ReadBufferSize: environment.IntOr("READ_BUFFER_SIZE", 4096),

		MaxConnsPerMinute: environment.IntOr("MAX_CONNS_PER_MINUTE", 120),

		HealthAddr: environment.StringOr("HEALTH_ADDR", ""),

		LogFormat: environment.StringOr("LOG_FORMAT", "text"),
	}
}
