package dist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte("<html></html>"), 0o600))
}

// TestScanMapsHTMLFilesToRoutes checks the index.html and .html suffix rules.
func TestScanMapsHTMLFilesToRoutes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "index.html")
	writeFile(t, dir, "about.html")
	writeFile(t, dir, "blog/post.html")
	writeFile(t, dir, "blog/index.html")
	writeFile(t, dir, "styles.css")

	urls, err := Scan(dir, "https://x.test/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"https://x.test/",
		"https://x.test/about",
		"https://x.test/blog/post",
		"https://x.test/blog/",
	}, urls)
}

// TestScanMissingDirFails propagates the IO error for a nonexistent root.
func TestScanMissingDirFails(t *testing.T) {
	t.Parallel()

	_, err := Scan(filepath.Join(t.TempDir(), "nope"), "https://x.test/")
	require.Error(t, err)
}

// TestScanInvalidBase rejects base URLs without a host.
func TestScanInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := Scan(t.TempDir(), "còmpletely bad")
	require.Error(t, err)
}

// TestScanNestedOnly walks deep trees.
func TestScanNestedOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a/b/c/page.html")

	urls, err := Scan(dir, "https://x.test/")
	require.NoError(t, err)
	require.Equal(t, []string{"https://x.test/a/b/c/page"}, urls)
}
