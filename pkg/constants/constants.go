// Package constants provides shared constants used throughout crmsync.
// This includes timeouts, limits, file permissions, and the default
// tuning values for the sync and consolidation pipelines.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the per-call timeout for remote CRM and store requests
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout bounds cleanup after a failed or interrupted command
	ShutdownTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like checkpoints (rw-------)
	SecureFilePermissions = 0600
)

// Rate limiting and retry constants
const (
	// DefaultRateLimit is the number of remote calls allowed per window
	DefaultRateLimit = 60

	// RateLimitWindow is the rolling window the call budget applies to
	RateLimitWindow = 60 * time.Second

	// RateLimitCooldown is how long the local limiter blocks once the budget is spent
	RateLimitCooldown = 60 * time.Second

	// RemoteCooldown is the pause after the remote side answers 401 or 429
	RemoteCooldown = 60 * time.Second

	// MaxRateLimitRetries is the number of attempts made for one page or record before giving up
	MaxRateLimitRetries = 5
)

// Sync constants
const (
	// DefaultPageSize is the number of records requested per list call
	DefaultPageSize = 100

	// MaxPageSize is the largest page size the remote accepts
	MaxPageSize = 1000

	// DefaultStalenessWindow is the minimum age before a synced record is rewritten
	DefaultStalenessWindow = 1 * time.Hour

	// DefaultBatchWidth is the number of records processed concurrently within a page
	DefaultBatchWidth = 4

	// DefaultMaxPageErrors is the number of consecutive failed pages that ends a run
	DefaultMaxPageErrors = 3

	// DeleteChunkSize is the maximum number of ids in one bulk delete
	DeleteChunkSize = 100

	// ListIDsPageSize is the page size used when reading the full local id set
	ListIDsPageSize = 1000
)

// Consolidation constants
const (
	// DefaultConsolidationBatch is the number of source rows read per request
	DefaultConsolidationBatch = 500
)

// Lock constants
const (
	// LockTTL is how long a run lock lives without a refresh
	LockTTL = 2 * time.Minute

	// LockRefreshInterval is how often a held run lock is extended
	LockRefreshInterval = 30 * time.Second
)

// Default names
const (
	// DefaultRecordsTable is the local table holding synced CRM records
	DefaultRecordsTable = "crm_clients"

	// DefaultMastersTable is the table holding consolidated customers
	DefaultMastersTable = "master_customers"

	// DefaultStoresTable is the reference table of physical stores
	DefaultStoresTable = "stores"

	// DefaultLogTable is the append-only consolidation audit table
	DefaultLogTable = "consolidation_log"

	// DefaultSchema is the store schema selected through profile headers
	DefaultSchema = "public"

	// DefaultCheckpointPath is the default checkpoint file location
	DefaultCheckpointPath = ".crmsync/checkpoint.json"

	// DefaultCheckpointKey is the Redis key used for shared checkpoints
	DefaultCheckpointKey = "crmsync:checkpoint"

	// DefaultAPIKeyHeader is the header carrying the remote API key
	DefaultAPIKeyHeader = "X-API-Key"
)
