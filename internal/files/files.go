// Package files performs the user-initiated file operations: deleting
// recommended items, revealing them in the system file manager and
// reporting volume usage.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/lyallcooper/reclaim/internal/protect"
	"github.com/lyallcooper/reclaim/internal/types"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrProtected = errors.New("protected path")
	ErrNotAbs    = errors.New("path must be absolute")
)

// Failure describes a path that could not be deleted.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DeleteResult summarizes a Delete call.
type DeleteResult struct {
	Deleted    []string  `json:"deleted"`
	Failed     []Failure `json:"failed"`
	BytesFreed int64     `json:"bytesFreed"`
}

// Delete removes each path recursively. Paths are handled independently;
// a failure never stops the rest.
func Delete(paths []string) *DeleteResult {
	res := &DeleteResult{Deleted: []string{}, Failed: []Failure{}}
	for _, p := range paths {
		size, err := remove(p)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Path: p, Error: err.Error()})
			continue
		}
		res.Deleted = append(res.Deleted, p)
		res.BytesFreed += size
	}
	return res
}

func remove(path string) (int64, error) {
	if !filepath.IsAbs(path) {
		return 0, ErrNotAbs
	}
	clean := filepath.Clean(path)
	if clean == filepath.Dir(clean) {
		return 0, fmt.Errorf("%w: refusing to delete a filesystem root", ErrProtected)
	}
	if protect.IsProtected(filepath.Base(clean)) {
		return 0, ErrProtected
	}
	if _, err := os.Lstat(clean); err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	size := sizeOf(clean)
	if err := os.RemoveAll(clean); err != nil {
		return 0, err
	}
	return size, nil
}

// sizeOf sums the sizes of the regular files below path without following
// symlinks.
func sizeOf(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// OpenLocation reveals path in the system file manager.
func OpenLocation(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path) // -R reveals in Finder
	case "windows":
		cmd = exec.Command("explorer", "/select,", path)
	default: // Linux
		cmd = exec.Command("xdg-open", filepath.Dir(path))
	}
	return cmd.Start()
}

// OpenFolder opens a folder in the system file manager.
func OpenFolder(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default: // Linux
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// Usage reports the capacity of the filesystem holding path.
func Usage(path string) (*types.Volume, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return &types.Volume{Total: u.Total, Free: u.Free, Used: u.Used}, nil
}
