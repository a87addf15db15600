package urlutil

import "strings"

const hrefPrefix = `href="`

// RewriteAnchors rewrites every href attribute value in the HTML fragment
// through MergeQuery. Values that are not absolute URLs are left untouched,
// as is every byte outside the rewritten URLs; the fragment is never
// re-rendered, so markup the merge does not touch survives verbatim.
func RewriteAnchors(html string, params map[string]string) string {
	if len(params) == 0 {
		return html
	}

	var b strings.Builder
	rest := html
	for {
		i := strings.Index(rest, hrefPrefix)
		if i < 0 {
			break
		}
		start := i + len(hrefPrefix)
		end := strings.Index(rest[start:], `"`)
		if end < 0 {
			break
		}

		original := rest[start : start+end]
		merged, err := MergeQuery(original, params)
		if err != nil {
			merged = original
		}

		b.WriteString(rest[:start])
		b.WriteString(merged)
		rest = rest[start+end:]
	}
	b.WriteString(rest)
	return b.String()
}
