package urlutil

import "testing"

func TestAbsoluteFrom(t *testing.T) {
	tests := []struct {
		name string
		src  string
		base string
		want string
	}{
		{
			name: "absolute URL unchanged",
			src:  "https://cdn.example.com/video.mp4",
			base: "https://v.example.com/api",
			want: "https://cdn.example.com/video.mp4",
		},
		{
			name: "scheme-relative gets base scheme",
			src:  "//cdn.example.com/video.mp4",
			base: "https://v.example.com/api",
			want: "https://cdn.example.com/video.mp4",
		},
		{
			name: "scheme-relative with http base",
			src:  "//cdn.example.com/video.mp4",
			base: "http://v.example.com/api",
			want: "http://cdn.example.com/video.mp4",
		},
		{
			name: "absolute path joins scheme and host",
			src:  "/media/video.mp4",
			base: "https://v.example.com/api",
			want: "https://v.example.com/media/video.mp4",
		},
		{
			name: "relative path joins base directory",
			src:  "video.mp4",
			base: "https://v.example.com/media/index.html",
			want: "https://v.example.com/media/video.mp4",
		},
		{
			name: "relative path with query on base",
			src:  "video.mp4",
			base: "https://v.example.com/media/?token=x",
			want: "https://v.example.com/media/video.mp4",
		},
		{
			name: "encoded characters preserved",
			src:  "//cdn.example.com/a%20b.mp4?t=1%3A2",
			base: "https://v.example.com/api",
			want: "https://cdn.example.com/a%20b.mp4?t=1%3A2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AbsoluteFrom(tt.src, tt.base); got != tt.want {
				t.Errorf("AbsoluteFrom(%q, %q) = %q, want %q", tt.src, tt.base, got, tt.want)
			}
		})
	}
}

func TestScheme(t *testing.T) {
	tests := []struct {
		rawURL string
		want   string
	}{
		{"https://example.com", "https"},
		{"http://example.com", "http"},
		{"example.com/path", "https"},
		{"", "https"},
	}
	for _, tt := range tests {
		if got := Scheme(tt.rawURL); got != tt.want {
			t.Errorf("Scheme(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}

func TestGetSchemeHost(t *testing.T) {
	if got := GetSchemeHost("https://v.example.com/api?d=x"); got != "https://v.example.com" {
		t.Errorf("GetSchemeHost = %q", got)
	}
}
