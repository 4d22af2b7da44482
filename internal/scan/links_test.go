package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<a href="/about">About</a>
<a href="https://example.com/pricing">Pricing</a>
<a href="https://www.example.com/blog">Blog</a>
<a href="https://other.com/external">External</a>
<a href="mailto:hi@example.com">Mail</a>
<a href="relative/docs">Docs</a>
<a href="">Empty</a>
</body></html>`

func TestExtractLinks_ResolvesRelative(t *testing.T) {
	t.Parallel()

	links, err := ExtractLinks([]byte(samplePage), "https://example.com/home/")
	require.NoError(t, err)
	require.Contains(t, links, "https://example.com/about")
	require.Contains(t, links, "https://example.com/home/relative/docs")
	require.Contains(t, links, "https://other.com/external")
}

func TestFilterInternal_ExactHostnameMatch(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://example.com/a",
		"https://www.example.com/b",
		"https://other.com/c",
		"http://example.com/d",
		"mailto:hi@example.com",
		"javascript:void(0)",
	}
	got := FilterInternal(links, "https://example.com")
	require.Equal(t, []string{
		"https://example.com/a",
		"http://example.com/d",
	}, got)
}

func TestFilterInternal_InvalidBase(t *testing.T) {
	t.Parallel()

	require.Nil(t, FilterInternal([]string{"https://example.com/a"}, "::not a url"))
}

func TestExtractInternalLinks_FullChain(t *testing.T) {
	t.Parallel()

	got := ExtractInternalLinks([]byte(samplePage), "https://example.com/home/", "https://example.com")
	require.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/pricing",
		"https://example.com/home/relative/docs",
	}, got)
}

func TestExtractInternalLinks_DeduplicatesEquivalentHrefs(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a href="/p">One</a>
<a href="/p/">Two</a>
<a href="/p#frag">Three</a>
</body></html>`
	got := ExtractInternalLinks([]byte(page), "https://example.com", "https://example.com")
	require.Equal(t, []string{"https://example.com/p"}, got)
}

func TestExtractInternalLinks_NoAnchors(t *testing.T) {
	t.Parallel()

	require.Empty(t, ExtractInternalLinks([]byte("<html><body>plain</body></html>"), "https://example.com", "https://example.com"))
}
