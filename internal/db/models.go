package db

import (
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// ScanRun is a finished scan stored for history.
type ScanRun struct {
	ID               int64
	TaskID           string
	ScheduledJobID   *int64
	TargetPath       string
	TargetSize       int64
	MaxDepth         int
	Status           types.Status
	StartedAt        time.Time
	CompletedAt      *time.Time
	ScannedCount     int64
	TotalEntries     int64
	ProcessedEntries int64
	TotalCleanable   int64
	TokenUsage       types.TokenUsage
	ErrorMessage     *string
	DeletableCount   int
}

// ScheduledJob is a cron-driven scan.
type ScheduledJob struct {
	ID             int64
	Name           string
	TargetPath     string
	TargetSizeGB   float64
	MaxDepth       int
	CronExpression string
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
}

// ActionType names an audited operation.
type ActionType string

const (
	ActionDelete ActionType = "delete"
)

// Action records one file operation request.
type Action struct {
	ID             int64
	ActionType     ActionType
	FilesProcessed int
	FilesFailed    int
	BytesFreed     int64
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// Stats aggregates history for the overview endpoint.
type Stats struct {
	TotalScans  int   `json:"totalScans"`
	RecentScans int   `json:"recentScans"`
	TotalFound  int64 `json:"totalFound"`
	TotalFreed  int64 `json:"totalFreed"`
	TotalTokens int64 `json:"totalTokens"`
}
