package config

import "time"

// Default configuration values.
const (
	DefaultMetadata       = "corpus-output/corpus.json"
	DefaultArchives       = "corpus-output"
	DefaultFetchTimeout   = 60 * time.Second
	DefaultRateLimit      = 0.0
	DefaultMaxArchiveSize = "512MB"
	DefaultBaseline       = 70.0
	DefaultMaxResults     = 1000
	DefaultServerAddr     = "127.0.0.1:8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	// MaxResultsLimit is the largest accepted scan.max_results.
	MaxResultsLimit = 1000
)
