package dust

import (
	"os"
	"path/filepath"

	"github.com/lyallcooper/reclaim/internal/types"
)

// readDir lists dir directly from the filesystem. Children whose metadata
// can't be read keep their directory-entry kind with size 0.
func readDir(dir string) ([]types.Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]types.Entry, 0, len(des))
	for _, de := range des {
		e := types.Entry{
			Name: de.Name(),
			Path: filepath.Join(dir, de.Name()),
			Kind: types.KindFile,
		}
		if de.IsDir() {
			e.Kind = types.KindDirectory
		}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
			if info.IsDir() {
				e.Kind = types.KindDirectory
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
