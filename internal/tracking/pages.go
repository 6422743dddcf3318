package tracking

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PageDir serves landing page content deployed to the filesystem by the
// admin layer, one subdirectory per campaign. Visitors without a
// resolvable token get the "active" deployment so the page looks the same
// whether or not the token checked out.
type PageDir struct {
	root string
}

// NewPageDir creates a page store rooted at dir.
func NewPageDir(dir string) *PageDir {
	return &PageDir{root: dir}
}

// anonymousDir is the deployment served when no campaign is known.
const anonymousDir = "active"

// Resolve maps a campaign and URL path to a file on disk. Lookup order:
// the exact file under the campaign deployment, then path/index.html,
// then the deployment root index.html. Returns an error when nothing
// matches.
func (p *PageDir) Resolve(campaignID int64, urlPath string) (string, error) {
	dir := anonymousDir
	if campaignID > 0 {
		dir = fmt.Sprintf("%d", campaignID)
	}
	base := filepath.Join(p.root, dir)

	cleaned := filepath.Clean("/" + strings.Trim(urlPath, "/"))
	candidates := []string{
		filepath.Join(base, cleaned),
		filepath.Join(base, cleaned, "index.html"),
		filepath.Join(base, "index.html"),
	}
	for _, c := range candidates {
		if !strings.HasPrefix(c, base) {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no landing page for campaign %d path %q", campaignID, urlPath)
}

// staticExtensions lists request paths that are asset fetches, never
// tracking interactions.
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".avif": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".map": true,
}

// IsStaticAsset reports whether the path refers to a static asset by
// file extension.
func IsStaticAsset(urlPath string) bool {
	return staticExtensions[strings.ToLower(filepath.Ext(urlPath))]
}
