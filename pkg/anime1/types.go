// Package anime1 implements the resolution pipeline against the upstream
// site: page fetching, HTML extraction, payload decoding, and stream
// resolution. Every value it produces is built fresh per request; nothing
// here is shared-mutable.
package anime1

import (
	"net/http"
	"time"
)

// Episode is one playable post, immutable once built from a page snapshot.
// Re-fetching its category produces a new value, never a mutation.
type Episode struct {
	ID         string // numeric upstream post id, globally unique
	Title      string // display title, original script preserved
	CategoryID string // back-reference, lookup only
	Published  string // upstream datetime attribute, verbatim
	NextID     string // next post in the series, empty on the latest

	order int // index parsed from "[n]" in the title, -1 when absent

	// payload is the raw embedded-player blob from the page. It stays
	// inside this package; only the resolver interprets it.
	payload string
}

// HasPayload reports whether the page carried an embedded-player blob for
// this episode.
func (e Episode) HasPayload() bool { return e.payload != "" }

// Category is a named grouping of episodes in upstream display order.
type Category struct {
	ID       string
	Title    string
	Episodes []Episode
}

// ResolvedStream is the final playable location for one episode. It is owned
// by the request that resolved it; the upstream URL may expire.
type ResolvedStream struct {
	EpisodeID  string
	MediaURL   string
	MIMEType   string
	ResolvedAt time.Time
	ExpiresAt  time.Time // zero when the upstream gave no expiry
	Cookies    []*http.Cookie
}

// Expired reports whether the stream's upstream URL is past its expiry.
func (s *ResolvedStream) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
