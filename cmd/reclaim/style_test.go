package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lyallcooper/reclaim/internal/types"
)

func TestRenderItem(t *testing.T) {
	line := renderItem(types.DeletableItem{
		Path: "/tmp/cache", Size: 3 << 20, Purpose: "build cache", Risk: types.RiskLow,
	})
	assert.Contains(t, line, "/tmp/cache")
	assert.Contains(t, line, "3MiB")
	assert.Contains(t, line, "build cache")
	assert.Contains(t, line, "low")
}

func TestRenderSummary(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	finished := time.Now()
	out := renderSummary(types.Snapshot{
		TargetPath:       "/data",
		Status:           types.StatusStopped,
		TargetSize:       1 << 30,
		TotalCleanable:   512 << 20,
		DeletableCount:   4,
		ProcessedEntries: 10,
		TotalEntries:     12,
		TokenUsage:       types.TokenUsage{Prompt: 100, Completion: 20, Total: 120},
		StartedAt:        started,
		FinishedAt:       &finished,
		Error:            "",
	})
	assert.Contains(t, out, "Scan /data")
	assert.Contains(t, out, "stopped")
	assert.Contains(t, out, "512MiB of 1GiB in 4 items")
	assert.Contains(t, out, "10 of 12 entries")
	assert.Contains(t, out, "120 (prompt 100, completion 20)")
	assert.False(t, strings.Contains(out, "Error"))
}

func TestTargetLabel(t *testing.T) {
	assert.Equal(t, "unbounded", targetLabel(0))
	assert.Equal(t, "unbounded", targetLabel(1<<63-1))
	assert.Equal(t, "2GiB", targetLabel(2<<30))
}
