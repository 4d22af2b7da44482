package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "strips default http port",
			in:   "http://example.com:80/a",
			want: "http://example.com/a",
		},
		{
			name: "keeps explicit non-default port",
			in:   "https://example.com:8443/a",
			want: "https://example.com:8443/a",
		},
		{
			name: "strips fragment",
			in:   "https://example.com/page#section-2",
			want: "https://example.com/page",
		},
		{
			name: "strips trailing slash",
			in:   "https://example.com/page/",
			want: "https://example.com/page",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "sorts query parameters",
			in:   "https://example.com/search?z=1&a=2",
			want: "https://example.com/search?a=2&z=1",
		},
		{
			name: "already canonical",
			in:   "https://example.com/page",
			want: "https://example.com/page",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, NormalizeURL(tc.in))
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM:443/Path/?b=2&a=1#frag",
		"http://example.com:80/",
		"https://example.com/a/b/c/",
	}
	for _, in := range inputs {
		once := NormalizeURL(in)
		require.Equal(t, once, NormalizeURL(once))
	}
}

func TestNormalizeURL_MalformedReturnedUnchanged(t *testing.T) {
	t.Parallel()

	in := "https://exa mple.com/%zz"
	require.Equal(t, in, NormalizeURL(in))
}

func TestDeduplicate_EquivalentForms(t *testing.T) {
	t.Parallel()

	got := Deduplicate([]string{
		"https://a.com/p",
		"https://a.com/p/",
		"https://a.com/p#x",
	})
	require.Equal(t, []string{"https://a.com/p"}, got)
}

func TestDeduplicate_PreservesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	got := Deduplicate([]string{
		"https://a.com/b",
		"https://a.com/a",
		"https://a.com/b/",
	})
	require.Equal(t, []string{"https://a.com/b", "https://a.com/a"}, got)
}
