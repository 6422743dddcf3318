package tracking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPageDir(t *testing.T) *PageDir {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"active/index.html":  "anon",
		"7/index.html":       "campaign",
		"7/login/index.html": "login",
		"7/reset.html":       "reset",
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return NewPageDir(root)
}

func TestPageDir_Resolve(t *testing.T) {
	pages := newTestPageDir(t)

	tests := []struct {
		name       string
		campaignID int64
		urlPath    string
		wantSuffix string
	}{
		{"campaign root", 7, "", filepath.Join("7", "index.html")},
		{"exact file", 7, "reset.html", filepath.Join("7", "reset.html")},
		{"directory index", 7, "login", filepath.Join("7", "login", "index.html")},
		{"fallback to root index", 7, "no/such/page", filepath.Join("7", "index.html")},
		{"anonymous deployment", 0, "whatever", filepath.Join("active", "index.html")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pages.Resolve(tt.campaignID, tt.urlPath)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuffix, got[len(got)-len(tt.wantSuffix):])
		})
	}
}

func TestPageDir_ResolveRejectsTraversal(t *testing.T) {
	pages := newTestPageDir(t)

	// The cleaned path stays inside the deployment, so traversal attempts
	// fall back to the deployment index instead of escaping it.
	got, err := pages.Resolve(7, "../active/index.html")
	require.NoError(t, err)
	assert.Contains(t, got, filepath.Join("7", "index.html"))
}

func TestPageDir_ResolveMissingCampaign(t *testing.T) {
	pages := newTestPageDir(t)
	_, err := pages.Resolve(99, "index.html")
	assert.Error(t, err)
}

func TestIsStaticAsset(t *testing.T) {
	assert.True(t, IsStaticAsset("css/site.css"))
	assert.True(t, IsStaticAsset("logo.PNG"))
	assert.True(t, IsStaticAsset("fonts/inter.woff2"))
	assert.False(t, IsStaticAsset("login"))
	assert.False(t, IsStaticAsset("reset.html"))
	assert.False(t, IsStaticAsset(""))
}
