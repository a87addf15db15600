// Package urlutil merges tracking query parameters into URLs embedded in
// outbound email HTML without disturbing the rest of the markup.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidArgument reports a nil parameter map or a URL that is not
// absolute.
var ErrInvalidArgument = errors.New("urlutil: invalid argument")

type queryPair struct {
	key   string
	value string
}

// MergeQuery returns rawURL with params merged into its query string.
// Existing parameters keep their relative order and come first; a key
// present in both keeps its position but takes the merged value; new keys
// are appended in sorted order so output is deterministic. The fragment is
// carried over byte-verbatim. Parameters with empty values are kept.
//
// params must be non-nil (an empty map is the identity on parameters) and
// rawURL must be absolute.
func MergeQuery(rawURL string, params map[string]string) (string, error) {
	if params == nil {
		return "", fmt.Errorf("nil params for %q: %w", rawURL, ErrInvalidArgument)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, ErrInvalidArgument)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL: %w", rawURL, ErrInvalidArgument)
	}

	base := rawURL
	fragment := ""
	if i := strings.Index(base, "#"); i >= 0 {
		fragment = base[i:]
		base = base[:i]
	}
	query := ""
	if i := strings.Index(base, "?"); i >= 0 {
		query = base[i+1:]
		base = base[:i]
	}

	pairs, index, err := parseQueryOrdered(query)
	if err != nil {
		return "", fmt.Errorf("parsing query of %q: %w", rawURL, ErrInvalidArgument)
	}

	added := make([]string, 0, len(params))
	for key, value := range params {
		if i, ok := index[key]; ok {
			pairs[i].value = value
			continue
		}
		added = append(added, key)
	}
	sort.Strings(added)
	for _, key := range added {
		pairs = append(pairs, queryPair{key: key, value: params[key]})
	}

	if len(pairs) == 0 {
		return base + fragment, nil
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('?')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	b.WriteString(fragment)
	return b.String(), nil
}

// parseQueryOrdered decodes a query string keeping parameter order, unlike
// url.ParseQuery which collects values into an unordered map.
func parseQueryOrdered(query string) ([]queryPair, map[string]int, error) {
	var pairs []queryPair
	index := make(map[string]int)
	if query == "" {
		return pairs, index, nil
	}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, nil, err
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, nil, err
		}
		pairs = append(pairs, queryPair{key: key, value: value})
		index[key] = len(pairs) - 1
	}
	return pairs, index, nil
}
