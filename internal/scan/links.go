package scan

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns every anchor href in the rendered HTML, resolved
// against the page's base URL. Hrefs that fail to resolve are dropped.
func ExtractLinks(html []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// FilterInternal keeps only links whose hostname equals the base URL's
// hostname exactly. Subdomains are distinct: www.example.com is not
// example.com. An invalid base yields an empty result.
func FilterInternal(links []string, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Hostname() == "" {
		return nil
	}
	baseHost := base.Hostname()

	var internal []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(u)
		if resolved.Hostname() != baseHost {
			continue
		}
		switch resolved.Scheme {
		case "http", "https":
			internal = append(internal, resolved.String())
		}
	}
	return internal
}

// Deduplicate normalizes each URL and removes duplicates, preserving
// first-seen order.
func Deduplicate(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	var out []string
	for _, link := range links {
		norm := NormalizeURL(link)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// ExtractInternalLinks runs the full extraction chain for one rendered
// page: extract anchors, keep same-origin links, normalize, deduplicate.
// Extraction failures degrade to an empty list.
func ExtractInternalLinks(html []byte, pageURL, baseURL string) []string {
	links, err := ExtractLinks(html, pageURL)
	if err != nil {
		return nil
	}
	return Deduplicate(FilterInternal(links, baseURL))
}
