package anime1

import "fmt"

// FetchReason classifies a failed upstream request.
type FetchReason string

const (
	FetchTimeout    FetchReason = "timeout"
	FetchHTTPStatus FetchReason = "http_status"
	FetchNetwork    FetchReason = "network"
)

// FetchError reports a failed outbound request. No retries happen at this
// layer; callers decide whether a fresh fetch is worth attempting.
type FetchError struct {
	URL    string
	Reason FetchReason
	Status int // set when Reason is FetchHTTPStatus
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Reason {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: upstream status %d", e.URL, e.Status)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timeout", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseMissing names the structural anchor a page was missing.
type ParseMissing string

const (
	MissingTitle        ParseMissing = "title"
	MissingEpisodeList  ParseMissing = "episode_list"
	MissingEmbedPayload ParseMissing = "embed_payload"
)

// ParseError reports HTML that lacked an expected structural element,
// usually a sign of upstream markup drift.
type ParseError struct {
	Missing ParseMissing
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: missing %s", e.Missing)
}

// ResolveReason classifies a failed stream resolution.
type ResolveReason string

const (
	DecodeFailed     ResolveReason = "decode_failed"
	NoCandidates     ResolveReason = "no_candidates"
	UpstreamRejected ResolveReason = "upstream_rejected"
)

// ResolveError reports a failure to turn an embedded payload into a playable
// URL. DecodeFailed means the upstream changed its encoding scheme.
type ResolveError struct {
	Reason ResolveReason
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve: %s", e.Reason)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// NotFoundError reports an id or URL the upstream does not recognize.
type NotFoundError struct {
	Kind string // "category" or "episode"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found upstream", e.Kind, e.ID)
}
