package anime1

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddedPayload is the decoded form of the embedded-player blob. It never
// leaves the resolver: the rest of the pipeline only sees ResolvedStream.
type EmbeddedPayload struct {
	raw        string
	candidates []sourceCandidate // set when the payload names sources directly
	token      string            // set when the payload is only a pointer
}

// sourceCandidate is one (quality, location) pair from a decoded payload or
// from the resolution endpoint's reply.
type sourceCandidate struct {
	Src   string `json:"src"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// DecodePayload reverses the upstream's encoding of the embedded blob. The
// scheme is upstream-controlled and changes without notice, so every step is
// defensive: a payload that survives no known decoding fails with
// decode_failed instead of guessing.
//
// Known shapes, tried in order:
//  1. a JSON attribute set carrying a "s" list of labeled sources
//  2. a JSON attribute set without sources: an opaque token for the
//     resolution endpoint
//  3. either of the above wrapped in (possibly unpadded) base64
func DecodePayload(raw string) (*EmbeddedPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ResolveError{Reason: DecodeFailed, Err: fmt.Errorf("empty payload")}
	}

	if p, ok := decodeJSON(raw); ok {
		return p, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		decoded, err := enc.DecodeString(padBase64(raw))
		if err != nil {
			continue
		}
		if p, ok := decodeJSON(string(decoded)); ok {
			p.raw = raw
			return p, nil
		}
	}
	return nil, &ResolveError{Reason: DecodeFailed, Err: fmt.Errorf("unrecognized payload encoding")}
}

// decodeJSON interprets one candidate plaintext as the attribute set.
func decodeJSON(text string) (*EmbeddedPayload, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	var attrs struct {
		Sources []sourceCandidate `json:"s"`
	}
	if err := json.Unmarshal([]byte(text), &attrs); err != nil {
		return nil, false
	}

	p := &EmbeddedPayload{raw: text}
	for _, c := range attrs.Sources {
		if c.Src != "" {
			p.candidates = append(p.candidates, c)
		}
	}
	if len(p.candidates) == 0 {
		// No inline sources: the whole attribute set is the token the
		// resolution endpoint expects back.
		p.token = text
	}
	return p, true
}

func padBase64(s string) string {
	switch len(s) % 4 {
	case 2:
		return s + "=="
	case 3:
		return s + "="
	}
	return s
}

// bestCandidate picks the highest labeled resolution; candidates without a
// parsable label sort last but still beat nothing.
func bestCandidate(candidates []sourceCandidate) (sourceCandidate, bool) {
	if len(candidates) == 0 {
		return sourceCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if labelQuality(c.Label) > labelQuality(best.Label) {
			best = c
		}
	}
	return best, true
}

// labelQuality turns labels like "1080p" or "720" into a comparable number.
func labelQuality(label string) int {
	digits := strings.TrimFunc(label, func(r rune) bool {
		return r < '0' || r > '9'
	})
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}
