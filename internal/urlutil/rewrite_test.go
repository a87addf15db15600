package urlutil

import "testing"

func TestRewriteAnchors(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		params map[string]string
		want   string
	}{
		{
			name:   "single anchor",
			html:   `<a href="https://x.com/">L</a>`,
			params: map[string]string{"utm_source": "news"},
			want:   `<a href="https://x.com/?utm_source=news">L</a>`,
		},
		{
			name:   "empty params leave html byte-identical",
			html:   `<p>Hi</p><a href="https://x.com/">L</a>`,
			params: map[string]string{},
			want:   `<p>Hi</p><a href="https://x.com/">L</a>`,
		},
		{
			name: "multiple anchors all rewritten",
			html: `<a href="https://a.com/">A</a> and <a href="https://b.com/?k=1">B</a>`,
			params: map[string]string{
				"utm_source": "news",
			},
			want: `<a href="https://a.com/?utm_source=news">A</a> and <a href="https://b.com/?k=1&utm_source=news">B</a>`,
		},
		{
			name:   "relative href left untouched",
			html:   `<a href="/local">L</a> <a href="https://x.com/">R</a>`,
			params: map[string]string{"utm_source": "news"},
			want:   `<a href="/local">L</a> <a href="https://x.com/?utm_source=news">R</a>`,
		},
		{
			name:   "anchor with existing query and fragment",
			html:   `<a href="https://x.com/page?k=1#top">L</a>`,
			params: map[string]string{"utm_medium": "email"},
			want:   `<a href="https://x.com/page?k=1&utm_medium=email#top">L</a>`,
		},
		{
			name:   "markup outside anchors untouched",
			html:   `<div class="x"><a href="https://x.com/">L</a><img src="https://img.example/pic.png"></div>`,
			params: map[string]string{"utm_source": "news"},
			want:   `<div class="x"><a href="https://x.com/?utm_source=news">L</a><img src="https://img.example/pic.png"></div>`,
		},
		{
			name:   "no anchors",
			html:   `<p>plain</p>`,
			params: map[string]string{"utm_source": "news"},
			want:   `<p>plain</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteAnchors(tt.html, tt.params)
			if got != tt.want {
				t.Errorf("RewriteAnchors() = %q, want %q", got, tt.want)
			}
		})
	}
}
