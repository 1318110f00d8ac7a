package anime1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/urlutil"
)

// expiryOffset is shaved off the upstream expiry so a stream never goes
// stale mid-handoff to the player.
const expiryOffset = 5 * time.Second

// Resolver turns an episode's embedded payload into a playable stream URL.
// Resolution is a pure function of the payload apart from upstream-side
// token expiry; no retries happen here.
type Resolver struct {
	fetch  *Fetcher
	apiURL string
	log    *logging.Logger
}

// NewResolver creates a resolver posting tokens to the given endpoint.
func NewResolver(fetch *Fetcher, apiURL string, log *logging.Logger) *Resolver {
	return &Resolver{
		fetch:  fetch,
		apiURL: apiURL,
		log:    log.WithComponent("resolver"),
	}
}

// Resolve decodes ep's payload and, when the payload is only a pointer,
// performs the secondary round trip to the resolution endpoint.
func (r *Resolver) Resolve(ctx context.Context, ep Episode) (*ResolvedStream, error) {
	payload, err := DecodePayload(ep.payload)
	if err != nil {
		return nil, err
	}

	if best, ok := bestCandidate(payload.candidates); ok {
		return &ResolvedStream{
			EpisodeID:  ep.ID,
			MediaURL:   urlutil.AbsoluteFrom(best.Src, r.apiURL),
			MIMEType:   best.Type,
			ResolvedAt: time.Now(),
		}, nil
	}

	return r.resolveToken(ctx, ep.ID, payload.token)
}

// resolveToken POSTs the payload token to the upstream resolution endpoint
// and parses its reply.
func (r *Resolver) resolveToken(ctx context.Context, episodeID, token string) (*ResolvedStream, error) {
	body, cookies, err := r.fetch.PostForm(ctx, r.apiURL, url.Values{"d": {token}})
	if err != nil {
		return nil, &ResolveError{Reason: UpstreamRejected, Err: err}
	}

	var reply struct {
		Sources []sourceCandidate `json:"s"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &ResolveError{Reason: UpstreamRejected, Err: err}
	}

	best, ok := bestCandidate(reply.Sources)
	if !ok {
		return nil, &ResolveError{Reason: NoCandidates}
	}

	stream := &ResolvedStream{
		EpisodeID:  episodeID,
		MediaURL:   urlutil.AbsoluteFrom(best.Src, r.apiURL),
		MIMEType:   best.Type,
		ResolvedAt: time.Now(),
		Cookies:    cookies,
		ExpiresAt:  expiryFromCookies(cookies),
	}
	r.log.Debug("resolved stream", "episode", episodeID, "expires_at", stream.ExpiresAt)
	return stream, nil
}

// expiryFromCookies reads the "e" cookie the resolution endpoint sets,
// an absolute unix timestamp for the media URL's validity.
func expiryFromCookies(cookies []*http.Cookie) time.Time {
	for _, c := range cookies {
		if c.Name != "e" {
			continue
		}
		if epoch, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			return time.Unix(epoch, 0).Add(-expiryOffset)
		}
	}
	return time.Time{}
}
