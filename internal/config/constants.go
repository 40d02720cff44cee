package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./campuslib.db"

	// DefaultTasksDatabasePath is the default path for the background task queue
	DefaultTasksDatabasePath = "./campuslib-tasks.db"

	// DefaultCoverCacheDir holds downloaded book cover images
	DefaultCoverCacheDir = "./campuslib-covers"
)

// Catalog shrink policies, see Catalog.ShrinkPolicy.
const (
	ShrinkPolicyReject = "reject"
	ShrinkPolicyClamp  = "clamp"
)
