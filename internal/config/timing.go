package config

import "time"

// Default timing configurations used throughout the server
const (
	// DefaultSessionTimeout is how long a session may stay idle before it is reaped
	DefaultSessionTimeout = 30 * time.Minute

	// DefaultCleanupInterval is how often the reaper sweeps for idle sessions
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultReadHeaderTimeout bounds reading request headers
	DefaultReadHeaderTimeout = 15 * time.Second

	// DefaultRetrievalTimeout bounds a single retrieval search attempt
	DefaultRetrievalTimeout = 10 * time.Second

	// DefaultRetrievalRetryDelay is the fixed delay between retrieval attempts
	DefaultRetrievalRetryDelay = 1 * time.Second

	// DefaultRetrievalHealthTimeout bounds the retrieval health probe
	DefaultRetrievalHealthTimeout = 5 * time.Second

	// DefaultDecoratorTimeout bounds the single decoration request
	DefaultDecoratorTimeout = 30 * time.Second

	// DefaultEngineDialTimeout bounds connecting to a remote agent worker
	DefaultEngineDialTimeout = 10 * time.Second

	// DefaultEngineCallTimeout bounds unary calls (open, cancel, terminate) to a remote worker
	DefaultEngineCallTimeout = 10 * time.Second
)

// Default sizes and counts
const (
	// DefaultPort is the HTTP listen port
	DefaultPort = 3000

	// DefaultHost is the HTTP bind host
	DefaultHost = "localhost"

	// DefaultMaxBodyBytes limits JSON request bodies
	DefaultMaxBodyBytes = 10 << 20

	// DefaultEventBuffer is the per-subscriber event channel size
	DefaultEventBuffer = 64

	// DefaultRetrievalTopK is the default number of documents requested
	DefaultRetrievalTopK = 5

	// DefaultRetrievalThreshold is the minimum relevance score kept (80%)
	DefaultRetrievalThreshold = 0.8

	// DefaultRetrievalRetryCount is the number of retries after the first attempt
	DefaultRetrievalRetryCount = 2

	// DefaultHistoryLimit is the page size for history requests without a limit
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps the page size of history requests
	MaxHistoryLimit = 1000
)
