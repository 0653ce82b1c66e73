// Package dist maps a pre-built static output directory onto site URLs.
package dist

import (
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sitepulse/sitepulse/internal/urlnorm"
)

// Scan walks distDir recursively and returns a normalized URL for every
// regular *.html file, resolved against baseURL. A trailing index.html maps
// to the directory path; any other name drops its .html suffix. Directory
// symlinks are not followed. IO failures abort the scan.
func Scan(distDir, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	var urls []string
	walkErr := filepath.WalkDir(distDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, relErr := filepath.Rel(distDir, path)
		if relErr != nil {
			return fmt.Errorf("relativize %s: %w", path, relErr)
		}
		urlPath := filepath.ToSlash(rel)
		if strings.HasSuffix(urlPath, "index.html") {
			urlPath = strings.TrimSuffix(urlPath, "index.html")
		} else {
			urlPath = strings.TrimSuffix(urlPath, ".html")
		}
		ref, refErr := url.Parse(urlPath)
		if refErr != nil {
			return fmt.Errorf("parse route %q: %w", urlPath, refErr)
		}
		resolved := base.ResolveReference(ref).String()
		urls = append(urls, urlnorm.Normalize(resolved, urlnorm.Options{}))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan dist dir %s: %w", distDir, walkErr)
	}
	return urls, nil
}
