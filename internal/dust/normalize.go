package dust

import (
	"path/filepath"
	"strings"

	"github.com/lyallcooper/reclaim/internal/types"
)

// Normalize converts dust nodes below parent into entries. The parent
// itself and nodes with an empty basename are dropped, and relative names
// are resolved against parent.
func Normalize(nodes []Node, parent string) []types.Entry {
	parent = filepath.Clean(parent)
	entries := make([]types.Entry, 0, len(nodes))
	for _, n := range nodes {
		raw := n.Path
		if raw == "" {
			raw = n.Name
		}
		if raw == "" {
			continue
		}
		path := resolve(raw, parent)
		if path == parent {
			continue
		}
		name := filepath.Base(path)
		if name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		entries = append(entries, types.Entry{
			Name: name,
			Path: path,
			Size: n.byteCount(),
			Kind: inferKind(name, len(n.Children) > 0),
		})
	}
	return entries
}

func resolve(raw, parent string) string {
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	// A bare name is a child of parent; anything with a separator is
	// relative to the working directory dust ran in.
	if !strings.ContainsAny(raw, `/\`) {
		return filepath.Join(parent, raw)
	}
	if abs, err := filepath.Abs(raw); err == nil {
		return abs
	}
	return filepath.Join(parent, filepath.Base(raw))
}

// inferKind guesses the kind of a dust node. dust does not report kinds, so
// a node is a directory when it has children or its name has no extension.
// Extensionless files are therefore reported as directories.
func inferKind(name string, hasChildren bool) types.Kind {
	if hasChildren || strings.LastIndex(name, ".") <= 0 {
		return types.KindDirectory
	}
	return types.KindFile
}
