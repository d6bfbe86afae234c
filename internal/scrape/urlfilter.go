package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultSkipPatterns drop portal pages that never carry entity data.
var defaultSkipPatterns = []string{
	"/agents/*",
	"/guides/*",
	"/news/*",
	"/mortgage/*",
}

// URLFilter selects entity pages out of a sitemap or crawl frontier using
// glob-style path patterns. Include patterns win only when the path also
// clears every skip pattern.
type URLFilter struct {
	include []string
	skip    []string
}

// NewURLFilter builds a filter from include and skip patterns. An empty
// include list accepts every path; an empty skip list falls back to the
// default portal noise patterns.
func NewURLFilter(include, skip []string) *URLFilter {
	if len(skip) == 0 {
		skip = defaultSkipPatterns
	}
	return &URLFilter{include: include, skip: skip}
}

// Keep reports whether the URL points at a page worth parsing. Unparseable
// URLs are dropped.
func (f *URLFilter) Keep(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)

	for _, pattern := range f.skip {
		if matchPath(strings.ToLower(pattern), p) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matchPath(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

// Apply filters a URL list in place order, returning the kept subset.
func (f *URLFilter) Apply(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Keep(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

// matchPath glob-matches a URL path. A trailing "/*" also matches nested
// paths, so "/project/*" covers "/project/lentoria/pricing".
func matchPath(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
