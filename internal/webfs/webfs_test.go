package webfs

import (
	"io/fs"
	"strings"
	"testing"
)

func TestStaticServesIndex(t *testing.T) {
	for _, name := range []string{"index.html", "app.js"} {
		if _, err := fs.Stat(Static(), name); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

// The desktop shell binds these methods on window.go.main.App.
func TestAppUsesDesktopBindings(t *testing.T) {
	src, err := fs.ReadFile(Static(), "app.js")
	if err != nil {
		t.Fatal(err)
	}
	for _, call := range []string{
		"desktop.ChooseDirectory(",
		"desktop.DiskUsage(",
		"desktop.OpenInFileManager(",
		"desktop.OpenFolder(",
		"/api/files/open-location",
		"/api/disk?path=",
	} {
		if !strings.Contains(string(src), call) {
			t.Errorf("app.js does not call %s", call)
		}
	}

	index, err := fs.ReadFile(Static(), "index.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(index), `id="browse"`) {
		t.Error("index.html has no browse button")
	}
}
