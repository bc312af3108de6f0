package protect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyallcooper/reclaim/internal/types"
)

func TestIsProtected(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"windows dir", "Windows", true},
		{"windows lowercase", "windows", true},
		{"program files", "Program Files", true},
		{"program files x86", "Program Files (x86)", true},
		{"programdata", "ProgramData", true},
		{"recycle bin", "$Recycle.Bin", true},
		{"system volume information", "System Volume Information", true},
		{"recovery", "RECOVERY", true},
		{"boot", "Boot", true},
		{"users", "Users", true},
		{"documents and settings", "Documents and Settings", true},
		{"pagefile", "pagefile.sys", true},
		{"hiberfil", "HIBERFIL.SYS", true},
		{"swapfile", "swapfile.sys", true},
		{"proc", "proc", true},
		{"usr", "usr", true},
		{"lost+found", "lost+found", true},

		{"windows prefix only", "Windows.old", false},
		{"users suffix", "users-backup", false},
		{"cache dir", "cache", false},
		{"temp file", "cache.tmp", false},
		{"node_modules", "node_modules", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProtected(tt.input), "IsProtected(%q)", tt.input)
		})
	}
}

func TestFilter(t *testing.T) {
	in := []types.Entry{
		{Name: "Windows", Kind: types.KindDirectory},
		{Name: "build", Kind: types.KindDirectory},
		{Name: "pagefile.sys", Kind: types.KindFile},
		{Name: "cache.tmp", Kind: types.KindFile},
	}

	got := Filter(in)

	assert.Equal(t, []types.Entry{
		{Name: "build", Kind: types.KindDirectory},
		{Name: "cache.tmp", Kind: types.KindFile},
	}, got)
}

func TestFilterEmpty(t *testing.T) {
	assert.Empty(t, Filter(nil))
}
