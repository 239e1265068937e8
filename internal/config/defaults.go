package config

const (
	// DefaultBindAddress is the loopback address the dashboard listens on.
	DefaultBindAddress = "127.0.0.1"

	// DefaultDashboardPort is the port the build-progress telemetry surface binds to.
	DefaultDashboardPort = 7679

	// DefaultLogLevel is the zerolog level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultDataDir is where the daemon keeps its pidfile, SQLite cache, and logs.
	DefaultDataDir = "~/.buildcore"

	// DefaultConfigFilename is the name of the TOML config file inside DefaultDataDir.
	DefaultConfigFilename = "buildcore.toml"

	// DefaultReadTimeout, DefaultWriteTimeout, DefaultIdleTimeout bound the
	// dashboard's HTTP server, in seconds.
	DefaultReadTimeout  = 10
	DefaultWriteTimeout = 10
	DefaultIdleTimeout  = 60

	// DefaultManifestName is the package manifest the config service searches
	// upward for when resolving a file's engines/targets.
	DefaultManifestName = "package.json"

	// DefaultMaxMemoryCacheEntries bounds the in-memory LRU tier of the cache.
	DefaultMaxMemoryCacheEntries = 2048

	// DefaultLockFile names the lockfile watched for dependency-version changes.
	DefaultLockFile = "package-lock.json"

	// DefaultFarmRate and DefaultFarmBurst bound farm dispatch throughput per
	// transform chain absent a more specific override.
	DefaultFarmRate  = 20.0
	DefaultFarmBurst = 10

	// DefaultCBFailureThreshold, DefaultCBResetTimeoutSec, DefaultCBHalfOpenMax
	// configure the farm's circuit breaker.
	DefaultCBFailureThreshold = 5
	DefaultCBResetTimeoutSec  = 30
	DefaultCBHalfOpenMax      = 1

	// DefaultRetryMaxAttempts, DefaultRetryBaseDelayMs, DefaultRetryMaxDelayMs
	// configure the farm's exponential backoff retry policy.
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelayMs = 100
	DefaultRetryMaxDelayMs  = 5000

	// DefaultWatchDebounceMs is the quiet period the invalidation journal waits
	// for a burst of filesystem events to settle before triggering a rebuild.
	DefaultWatchDebounceMs = 100

	// DefaultTracingExporter names the OTel exporter used absent configuration.
	DefaultTracingExporter = "stdout"

	// DefaultTracingServiceName is the service name reported in trace resources.
	DefaultTracingServiceName = "buildcore"

	// DefaultTracingSampleRate samples every trace by default; lower for high-volume builds.
	DefaultTracingSampleRate = 1.0
)

// ValidLogLevels are the zerolog level names accepted in config.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// ValidTracingExporters are the exporter names internal/tracing.Init accepts.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultCandidateExtensions are the extensions the resolver appends when
// resolving an extensionless specifier, in priority order.
var DefaultCandidateExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".json", ".mjs", ".cjs"}

// DefaultConfig returns the built-in configuration used when no config file
// is present and no overrides are given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:   DefaultBindAddress,
			DashboardPort: DefaultDashboardPort,
			LogLevel:      DefaultLogLevel,
			DataDir:       DefaultDataDir,
			ReadTimeout:   DefaultReadTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			IdleTimeout:   DefaultIdleTimeout,
		},
		Build: BuildConfig{
			CacheEnabled:          true,
			ManifestName:          DefaultManifestName,
			LockFile:              DefaultLockFile,
			CandidateExtensions:   append([]string(nil), DefaultCandidateExtensions...),
			MaxMemoryCacheEntries: DefaultMaxMemoryCacheEntries,
		},
		Farm: FarmConfig{
			Enabled:            false,
			DefaultRate:        DefaultFarmRate,
			DefaultBurst:       DefaultFarmBurst,
			TransformerLimits:  map[string]TransformerLimit{},
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeoutSec,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
		},
		Secrets: SecretsConfig{
			FarmEndpointKeyRef: "keyring://buildcore/farm-endpoint-token",
			RemoteCacheKeyRef:  "keyring://buildcore/remote-cache-token",
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: DefaultWatchDebounceMs,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    true,
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
	}
}
