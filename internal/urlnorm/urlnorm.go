// Package urlnorm standardizes URLs so discovery sources deduplicate
// correctly. Normalization lowercases the scheme and host, removes default
// ports, strips fragments, applies the trailing-slash policy, filters query
// parameters, and sorts what remains into a stable serialization.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// SlashPolicy controls trailing-slash handling on the path.
type SlashPolicy string

// Trailing-slash policies. The root path "/" is exempt from all of them.
const (
	SlashIgnore SlashPolicy = ""
	SlashAlways SlashPolicy = "always"
	SlashNever  SlashPolicy = "never"
)

// Options tunes Normalize. The zero value gives the default behavior:
// fragment stripped, query kept as-is (sorted), trailing slash untouched.
type Options struct {
	// KeepFragment retains the #fragment instead of stripping it.
	KeepFragment bool
	// StripQuery drops every query parameter except those whose name
	// fully matches one of AllowedQueryPatterns.
	StripQuery bool
	// AllowedQueryPatterns are regexes matched against the full parameter
	// name (anchored). Invalid patterns match nothing.
	AllowedQueryPatterns []string
	// TrailingSlash adjusts the path suffix per SlashPolicy.
	TrailingSlash SlashPolicy
}

// Normalize returns the canonical form of rawURL, or rawURL unchanged when
// it does not parse. Normalizing an already-normalized URL is a no-op.
func Normalize(rawURL string, opts Options) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if !opts.KeepFragment {
		u.Fragment = ""
		u.RawFragment = ""
	}

	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	switch opts.TrailingSlash {
	case SlashNever:
		if u.Path != "/" {
			u.Path = strings.TrimSuffix(u.Path, "/")
		}
	case SlashAlways:
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
	}
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		if opts.StripQuery {
			allowed := compilePatterns(opts.AllowedQueryPatterns)
			for name := range q {
				if !matchesAny(allowed, name) {
					delete(q, name)
				}
			}
		}
		// Encode sorts keys, which gives the stable serialization.
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func matchesAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
