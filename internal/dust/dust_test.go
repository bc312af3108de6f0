package dust

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/reclaim/internal/types"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"empty string", "", 0},
		{"zero", "0", 0},
		{"zero bytes", "0B", 0},
		{"plain bytes", "512", 512},
		{"dust short K", "4.0K", 4096},
		{"dust short M", "12M", 12 * 1024 * 1024},
		{"dust short G", "1G", 1024 * 1024 * 1024},
		{"decimal G", "1.5G", 1610612736},
		{"with space and unit", "2 MB", 2 * 1024 * 1024},
		{"binary unit", "1.5 KiB", 1536},
		{"lowercase", "3k", 3072},
		{"terabytes", "1T", 1 << 40},
		{"petabytes", "1P", 1 << 50},
		{"surrounding whitespace", "  8K  ", 8192},
		{"invalid string", "invalid", 0},
		{"bad suffix", "5 XB", 0},
		{"negative number", "-5G", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSize(tt.input))
		})
	}
}

func TestSizeUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Size
	}{
		{"number", `1234`, 1234},
		{"float number", `1234.0`, 1234},
		{"string", `"4.0K"`, 4096},
		{"null", `null`, 0},
		{"garbage string", `"lots"`, 0},
		{"negative", `-3`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Size
			require.NoError(t, json.Unmarshal([]byte(tt.input), &s))
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("skips preamble", func(t *testing.T) {
		out := []byte("Did not have permissions for all directories\n" +
			`{"size":"10M","name":"/data","children":[{"size":"6M","name":"/data/cache","children":[]}]}`)
		root, err := decode(out)
		require.NoError(t, err)
		assert.Equal(t, "/data", root.Name)
		require.Len(t, root.Children, 1)
		assert.Equal(t, int64(6*1024*1024), root.Children[0].byteCount())
	})

	t.Run("ignores trailing output", func(t *testing.T) {
		out := []byte(`{"size":"9G","name":"/data","children":[{"size":"9G","name":"/data/cache","children":[]}]}` +
			"\nWarning: some files could not be read\n")
		root, err := decode(out)
		require.NoError(t, err)
		require.Len(t, root.Children, 1)
		assert.Equal(t, "/data/cache", root.Children[0].Name)
	})

	t.Run("no payload", func(t *testing.T) {
		_, err := decode([]byte("dust: command failed"))
		assert.ErrorIs(t, err, ErrNoPayload)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := decode([]byte(`{"name": `))
		assert.Error(t, err)
	})

	t.Run("bytes field wins", func(t *testing.T) {
		root, err := decode([]byte(`{"name":"x","size":"1K","bytes":1000}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1000), root.byteCount())
	})
}

func TestNormalize(t *testing.T) {
	parent := t.TempDir()

	nodes := []Node{
		{Name: parent, Size: 100},
		{Name: filepath.Join(parent, "node_modules"), Size: 40},
		{Name: filepath.Join(parent, "report.pdf"), Size: 30},
		{Name: "build", Size: 20, Children: []Node{{Name: "a.o"}}},
		{Name: filepath.Join(parent, ".cache"), Size: 5},
		{Name: filepath.Join(parent, "archive.tar"), Size: 5, Children: []Node{{Name: "x"}}},
		{Name: ""},
	}

	got := Normalize(nodes, parent)

	want := []types.Entry{
		{Name: "node_modules", Path: filepath.Join(parent, "node_modules"), Size: 40, Kind: types.KindDirectory},
		{Name: "report.pdf", Path: filepath.Join(parent, "report.pdf"), Size: 30, Kind: types.KindFile},
		{Name: "build", Path: filepath.Join(parent, "build"), Size: 20, Kind: types.KindDirectory},
		{Name: ".cache", Path: filepath.Join(parent, ".cache"), Size: 5, Kind: types.KindDirectory},
		{Name: "archive.tar", Path: filepath.Join(parent, "archive.tar"), Size: 5, Kind: types.KindDirectory},
	}
	assert.Equal(t, want, got)
}

func TestNormalizePrefersPath(t *testing.T) {
	parent := t.TempDir()
	nodes := []Node{{Name: "ignored", Path: filepath.Join(parent, "logs"), Size: 7}}

	got := Normalize(nodes, parent)
	require.Len(t, got, 1)
	assert.Equal(t, "logs", got[0].Name)
	assert.Equal(t, filepath.Join(parent, "logs"), got[0].Path)
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		name        string
		hasChildren bool
		want        types.Kind
	}{
		{"file.txt", false, types.KindFile},
		{"Makefile", false, types.KindDirectory},
		{".git", false, types.KindDirectory},
		{"v1.2", false, types.KindFile},
		{"data.d", true, types.KindDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferKind(tt.name, tt.hasChildren))
		})
	}
}

func TestListFallsBackToReadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cache"), 0o755))

	e := NewExecutor(nil)
	e.SetBinaryPath(filepath.Join(dir, "does-not-exist"))

	got := e.List(context.Background(), dir)
	require.Len(t, got, 2)

	byName := map[string]types.Entry{}
	for _, entry := range got {
		byName[entry.Name] = entry
	}
	assert.Equal(t, types.KindFile, byName["a.log"].Kind)
	assert.Equal(t, int64(5), byName["a.log"].Size)
	assert.Equal(t, filepath.Join(dir, "a.log"), byName["a.log"].Path)
	assert.Equal(t, types.KindDirectory, byName["cache"].Kind)
}

func TestListMissingDirectory(t *testing.T) {
	e := NewExecutor(nil)
	e.SetBinaryPath(filepath.Join(t.TempDir(), "does-not-exist"))

	got := e.List(context.Background(), filepath.Join(t.TempDir(), "gone"))
	assert.Empty(t, got)
}

func TestListWithFakeDust(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(t.TempDir(), "dust")
	body := "#!/bin/sh\n" +
		"echo 'Indexing...' >&2\n" +
		`echo '{"size":"3M","name":"` + dir + `","children":[` +
		`{"size":"2M","name":"` + dir + `/target","children":[]},` +
		`{"size":"1M","name":"` + dir + `/core.dump","children":[]}]}'` + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	e := NewExecutor(nil)
	e.SetBinaryPath(script)

	got := e.List(context.Background(), dir)
	want := []types.Entry{
		{Name: "target", Path: filepath.Join(dir, "target"), Size: 2 * 1024 * 1024, Kind: types.KindDirectory},
		{Name: "core.dump", Path: filepath.Join(dir, "core.dump"), Size: 1024 * 1024, Kind: types.KindFile},
	}
	assert.Equal(t, want, got)
}

func TestListWithTrailingWarning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(t.TempDir(), "dust")
	body := "#!/bin/sh\n" +
		`echo '{"size":"9G","name":"` + dir + `","children":[` +
		`{"size":"9G","name":"` + dir + `/cache","children":[]}]}'` + "\n" +
		"echo 'Did not have permissions for all directories' >&2\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	e := NewExecutor(nil)
	e.SetBinaryPath(script)

	got := e.List(context.Background(), dir)
	require.Len(t, got, 1)
	assert.Equal(t, "cache", got[0].Name)
	assert.Equal(t, int64(9*1024*1024*1024), got[0].Size)
	assert.Equal(t, types.KindDirectory, got[0].Kind)
}

func TestFindBinaryPrefersConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my-dust")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o755))

	assert.Equal(t, path, FindBinary(path))
}
