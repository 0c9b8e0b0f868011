package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Audit trail storage. Empty means the gateway runs without audit;
	// session state never touches the database either way.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true:
	// - /readyz probes the upstream backend and returns 503 when unreachable.
	ReadinessProbeUpstream bool

	// Security policy:
	// If true, cookies must be Secure and the upstream base URL must be https.
	RequireSecureTransport bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	env := EnvString("PRISM_ENV", "development")

	return Config{
		Env:      env,
		HTTPAddr: EnvString("PRISM_HTTP_ADDR", "0.0.0.0:8080"),

		LogLevel:  EnvString("PRISM_LOG_LEVEL", "info"),
		LogFormat: EnvString("PRISM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PRISM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PRISM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PRISM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PRISM_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("PRISM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PRISM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PRISM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PRISM_DB_MIN_CONNS", 0),

		CORSAllowedOrigins:   EnvCSV("PRISM_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		CORSAllowCredentials: EnvBool("PRISM_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("PRISM_CORS_MAX_AGE_SECONDS", 600),

		ReadinessProbeUpstream: EnvBool("PRISM_READINESS_PROBE_UPSTREAM", false),

		RequireSecureTransport: EnvBool("PRISM_REQUIRE_SECURE_TRANSPORT", env == "production"),
	}
}
