package anime1

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestDecodePayloadToken(t *testing.T) {
	raw := `{"c":"90","e":"1","t":"tok1"}`
	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.token != raw {
		t.Errorf("token = %q, want the full attribute set", p.token)
	}
	if len(p.candidates) != 0 {
		t.Errorf("candidates = %v, want none", p.candidates)
	}
}

func TestDecodePayloadInlineSources(t *testing.T) {
	raw := `{"s":[{"src":"//cdn.example.com/v480.mp4","type":"video/mp4","label":"480p"},{"src":"//cdn.example.com/v1080.mp4","type":"video/mp4","label":"1080p"}]}`
	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(p.candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(p.candidates))
	}
	if p.token != "" {
		t.Errorf("token = %q, want empty when sources are inline", p.token)
	}

	best, ok := bestCandidate(p.candidates)
	if !ok || best.Label != "1080p" {
		t.Errorf("bestCandidate = %+v, want the 1080p source", best)
	}
}

func TestDecodePayloadBase64(t *testing.T) {
	plain := `{"c":"90","e":"1","t":"tok1"}`
	tests := []struct {
		name string
		raw  string
	}{
		{"std padded", base64.StdEncoding.EncodeToString([]byte(plain))},
		{"std unpadded", base64.RawStdEncoding.EncodeToString([]byte(plain))},
		{"url-safe unpadded", base64.RawURLEncoding.EncodeToString([]byte(plain))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(tt.raw)
			if err != nil {
				t.Fatalf("DecodePayload: %v", err)
			}
			if p.token != plain {
				t.Errorf("token = %q, want %q", p.token, plain)
			}
		})
	}
}

func TestDecodePayloadUnrecognized(t *testing.T) {
	tests := []string{
		"",
		"not json and not base64 at all!!",
		"<xml/>",
	}
	for _, raw := range tests {
		_, err := DecodePayload(raw)
		var re *ResolveError
		if !errors.As(err, &re) || re.Reason != DecodeFailed {
			t.Errorf("DecodePayload(%q) error = %v, want decode_failed", raw, err)
		}
	}
}

func TestBestCandidate(t *testing.T) {
	tests := []struct {
		name       string
		candidates []sourceCandidate
		wantSrc    string
		wantOK     bool
	}{
		{"empty", nil, "", false},
		{
			"single unlabeled",
			[]sourceCandidate{{Src: "a"}},
			"a", true,
		},
		{
			"labeled beats unlabeled",
			[]sourceCandidate{{Src: "a"}, {Src: "b", Label: "720p"}},
			"b", true,
		},
		{
			"highest resolution wins",
			[]sourceCandidate{{Src: "a", Label: "720p"}, {Src: "b", Label: "1080p"}, {Src: "c", Label: "480"}},
			"b", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bestCandidate(tt.candidates)
			if ok != tt.wantOK || got.Src != tt.wantSrc {
				t.Errorf("bestCandidate() = (%+v, %v), want (%q, %v)", got, ok, tt.wantSrc, tt.wantOK)
			}
		})
	}
}

func TestLabelQuality(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"1080p", 1080},
		{"720", 720},
		{"HD", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := labelQuality(tt.label); got != tt.want {
			t.Errorf("labelQuality(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}
