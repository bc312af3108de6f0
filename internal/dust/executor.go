// Package dust lists directory children and their sizes using the dust
// disk usage tool, falling back to a direct filesystem read.
package dust

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/types"
)

// DefaultTimeout bounds a single dust invocation.
const DefaultTimeout = 60 * time.Second

// ErrNoPayload is returned when dust output contains no JSON object.
var ErrNoPayload = errors.New("no JSON payload in dust output")

// Executor runs dust commands
type Executor struct {
	binaryPath string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewExecutor creates a new dust executor
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		binaryPath: "dust",
		timeout:    DefaultTimeout,
		logger:     logger,
	}
}

// SetBinaryPath sets a custom path to the dust binary
func (e *Executor) SetBinaryPath(path string) {
	if path != "" {
		e.binaryPath = path
	}
}

// BinaryPath returns the binary the executor will run.
func (e *Executor) BinaryPath() string {
	return e.binaryPath
}

// SetTimeout overrides the per-invocation timeout.
func (e *Executor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// CheckInstalled verifies that dust is installed and accessible
func (e *Executor) CheckInstalled(ctx context.Context) error {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return fmt.Errorf("dust not found or not executable: %w", err)
	}
	if !strings.Contains(strings.ToLower(string(output)), "dust") {
		return fmt.Errorf("unexpected output from dust --version: %s", output)
	}
	return nil
}

// Version returns the dust version string, e.g. "1.1.1".
func (e *Executor) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get dust version: %w", err)
	}
	fields := strings.Fields(string(output))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty output from dust --version")
	}
	return fields[len(fields)-1], nil
}

// List returns the immediate children of dir.
func (e *Executor) List(ctx context.Context, dir string) []types.Entry {
	return e.ListDepth(ctx, dir, 1)
}

// ListDepth runs dust at the given depth and returns the children of dir.
// Any dust failure falls back to reading the directory directly; if that
// also fails the error is logged and nil is returned.
func (e *Executor) ListDepth(ctx context.Context, dir string, depth int) []types.Entry {
	if depth < 1 {
		depth = 1
	}

	entries, err := e.run(ctx, dir, depth)
	if err == nil {
		metrics.RecordListing("dust")
		return entries
	}
	e.logger.Debug("dust failed, reading directory directly",
		zap.String("dir", dir), zap.Error(err))

	entries, err = readDir(dir)
	if err != nil {
		metrics.RecordListing("failed")
		e.logger.Warn("failed to list directory",
			zap.String("dir", dir), zap.Error(err))
		return nil
	}
	metrics.RecordListing("fallback")
	return entries
}

func (e *Executor) run(ctx context.Context, dir string, depth int) ([]types.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, "-d", strconv.Itoa(depth), "-j", dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("dust exited with error: %w", err)
	}

	root, err := decode(output)
	if err != nil {
		return nil, err
	}
	return Normalize(root.Children, dir), nil
}

// decode extracts the JSON tree from dust output, skipping anything printed
// before the first '{'.
func decode(output []byte) (*Node, error) {
	start := bytes.IndexByte(output, '{')
	if start < 0 {
		return nil, ErrNoPayload
	}
	// Only the first value counts; stderr may trail the payload.
	var root Node
	if err := json.NewDecoder(bytes.NewReader(output[start:])).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse dust output: %w", err)
	}
	return &root, nil
}

// FindBinary locates a dust binary: the configured path if it exists, then
// a copy bundled next to the executable, then $PATH. It returns "" when
// none is found so the executor's default applies.
func FindBinary(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	name := "dust"
	if runtime.GOOS == "windows" {
		name = "dust.exe"
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		candidates := []string{
			filepath.Join(execDir, name),
			filepath.Join(execDir, "bin", name),
		}
		if runtime.GOOS == "darwin" {
			// Inside .app bundle: Reclaim.app/Contents/MacOS/Reclaim
			candidates = append(candidates, filepath.Join(execDir, "..", "Resources", name))
		}
		for _, path := range candidates {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}
