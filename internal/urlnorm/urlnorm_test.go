package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeCanonicalForm covers case folding, default ports, fragment
// stripping and query sorting in one pass.
func TestNormalizeCanonicalForm(t *testing.T) {
	t.Parallel()

	got := Normalize("HTTPS://Ex.COM:443/a?b=2&a=1#x", Options{})
	want := Normalize("https://ex.com/a?a=1&b=2", Options{})
	require.Equal(t, want, got)
	require.Equal(t, "https://ex.com/a?a=1&b=2", got)
}

// TestNormalizeIdempotent asserts norm(norm(u)) == norm(u) across option sets.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTP://EXAMPLE.com:80/Path/?z=1&a=2#frag",
		"https://ex.com/a%20b?q=hello%20world",
		"https://ex.com",
		"https://ex.com/dir/",
	}
	optionSets := []Options{
		{},
		{StripQuery: true},
		{StripQuery: true, AllowedQueryPatterns: []string{"q"}},
		{TrailingSlash: SlashNever},
		{TrailingSlash: SlashAlways},
		{KeepFragment: true},
	}
	for _, raw := range inputs {
		for _, opts := range optionSets {
			once := Normalize(raw, opts)
			require.Equal(t, once, Normalize(once, opts), "input %q opts %+v", raw, opts)
		}
	}
}

// TestNormalizeDefaultPorts verifies ports are dropped only when they match
// the scheme default.
func TestNormalizeDefaultPorts(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://ex.com/", Normalize("http://ex.com:80/", Options{}))
	require.Equal(t, "https://ex.com/", Normalize("https://ex.com:443/", Options{}))
	require.Equal(t, "http://ex.com:8080/", Normalize("http://ex.com:8080/", Options{}))
	require.Equal(t, "https://ex.com:80/", Normalize("https://ex.com:80/", Options{}))
}

// TestNormalizeTrailingSlash checks each policy, including the root exemption.
func TestNormalizeTrailingSlash(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://ex.com/a", Normalize("https://ex.com/a/", Options{TrailingSlash: SlashNever}))
	require.Equal(t, "https://ex.com/a/", Normalize("https://ex.com/a", Options{TrailingSlash: SlashAlways}))
	require.Equal(t, "https://ex.com/a/", Normalize("https://ex.com/a/", Options{}))
	require.Equal(t, "https://ex.com/", Normalize("https://ex.com/", Options{TrailingSlash: SlashNever}))
}

// TestNormalizeQueryFiltering exercises the allow-list with full-match
// semantics on parameter names.
func TestNormalizeQueryFiltering(t *testing.T) {
	t.Parallel()

	got := Normalize("https://ex.com/p?page=2&utm_source=x&id=7", Options{
		StripQuery:           true,
		AllowedQueryPatterns: []string{"page", "id"},
	})
	require.Equal(t, "https://ex.com/p?id=7&page=2", got)

	// "page" must not match "pages": the pattern is anchored.
	got = Normalize("https://ex.com/p?pages=9&page=2", Options{
		StripQuery:           true,
		AllowedQueryPatterns: []string{"page"},
	})
	require.Equal(t, "https://ex.com/p?page=2", got)

	// No allow-list: everything goes.
	got = Normalize("https://ex.com/p?a=1&b=2", Options{StripQuery: true})
	require.Equal(t, "https://ex.com/p", got)
}

// TestNormalizeInvalidPattern treats an uncompilable allow pattern as
// matching nothing.
func TestNormalizeInvalidPattern(t *testing.T) {
	t.Parallel()

	got := Normalize("https://ex.com/p?a=1", Options{
		StripQuery:           true,
		AllowedQueryPatterns: []string{"("},
	})
	require.Equal(t, "https://ex.com/p", got)
}

// TestNormalizeFragment covers both fragment modes.
func TestNormalizeFragment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://ex.com/a", Normalize("https://ex.com/a#sec", Options{}))
	require.Equal(t, "https://ex.com/a#sec", Normalize("https://ex.com/a#sec", Options{KeepFragment: true}))
}

// TestNormalizeUnparseable returns the input untouched when parsing fails.
func TestNormalizeUnparseable(t *testing.T) {
	t.Parallel()

	bad := "http://ex.com/%zz\x7f"
	require.Equal(t, bad, Normalize(bad, Options{}))
}
