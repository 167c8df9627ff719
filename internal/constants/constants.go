package constants

import "time"

const (
	MatchBatchSize        = 15
	DefaultMatchPageSize  = 100
	MaxMatchPageSize      = 200
	AutoRefreshPageSize   = 30
	DefaultHistoryLimit   = 100
	MaxHistoryLimit       = 500
	ArenaQueueID          = 1700
	DefaultAutoRefreshGap = 5 * time.Minute
)

const (
	// pause after listing ids, then after every batch, to stay under the
	// provider's two-minute quota
	ListPause  = 1200 * time.Millisecond
	BatchPause = 1500 * time.Millisecond
)

const (
	MaxRetries       = 3
	RetryBaseDelay   = 2 * time.Second
	RequestsPerSec   = 20
	RequestsPerMin   = 100
	MatchIDsPer10Sec = 2000
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)
