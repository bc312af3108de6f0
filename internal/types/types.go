// Package types holds the data shapes shared by the lister, the agent, the
// scan orchestrator and the HTTP layer.
package types

import "time"

// Kind is the inferred filesystem object kind of an Entry.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry is one filesystem child discovered by a listing.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Kind Kind   `json:"type"`
}

// IsDir reports whether the entry was inferred to be a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Classification is the oracle's verdict category for one entry.
type Classification string

const (
	SafeToDelete Classification = "safe_to_delete"
	Suspicious   Classification = "suspicious"
	Keep         Classification = "keep"
	NeedsSearch  Classification = "needs_search"
)

// Valid reports whether c is one of the four known classifications.
func (c Classification) Valid() bool {
	switch c {
	case SafeToDelete, Suspicious, Keep, NeedsSearch:
		return true
	}
	return false
}

// Risk is the oracle's risk rating.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Valid reports whether r is a known risk level.
func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Verdict is the oracle's judgment for one entry of a batch.
// Index is 1-based and refers to the position in the submitted batch.
type Verdict struct {
	Index          int            `json:"index"`
	Name           string         `json:"name"`
	Classification Classification `json:"classification"`
	Purpose        string         `json:"purpose"`
	Reason         string         `json:"reason"`
	Risk           Risk           `json:"risk"`
}

// DeletableItem is a finalized recommendation.
type DeletableItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Kind    Kind   `json:"type"`
	Purpose string `json:"purpose"`
	Reason  string `json:"reason"`
	Risk    Risk   `json:"risk"`
}

// TokenUsage counts oracle tokens.
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add accumulates o into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

// Status is the lifecycle state of a scan task.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusScanning  Status = "scanning"
	StatusAnalyzing Status = "analyzing"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether s is one of the final states.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusStopped
}

// Volume describes the filesystem holding a scan target.
type Volume struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

// Snapshot is an immutable copy of a task's state.
type Snapshot struct {
	ID               string          `json:"id"`
	Status           Status          `json:"status"`
	TargetPath       string          `json:"targetPath"`
	TargetSize       int64           `json:"targetSize"`
	MaxDepth         int             `json:"maxDepth"`
	CurrentPath      string          `json:"currentPath"`
	CurrentDepth     int             `json:"currentDepth"`
	ScannedCount     int64           `json:"scannedCount"`
	TotalEntries     int64           `json:"totalEntries"`
	ProcessedEntries int64           `json:"processedEntries"`
	DeletableCount   int             `json:"deletableCount"`
	TotalCleanable   int64           `json:"totalCleanable"`
	TokenUsage       TokenUsage      `json:"tokenUsage"`
	Deletable        []DeletableItem `json:"deletable"`
	Volume           *Volume         `json:"volume,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty"`
	Error            string          `json:"error,omitempty"`
}
