// Package services contains the gateway orchestrator that ties the
// resolution pipeline, playlist generation, and the recency store together
// behind the HTTP handlers.
package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"anime1-proxy-go/pkg/anime1"
	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/metrics"
	"anime1-proxy-go/pkg/playlist"
	"anime1-proxy-go/pkg/recent"
)

// streamCacheSweep is the cache size that triggers an expiry sweep before
// the next insert.
const streamCacheSweep = 128

// Gateway coordinates page building, stream resolution, and playlist
// generation. It owns the bounded resolved-stream cache; everything below it
// is stateless per request.
type Gateway struct {
	cfg       *config.Config
	log       *logging.Logger
	metrics   *metrics.Metrics
	builder   *anime1.Builder
	resolver  *anime1.Resolver
	fetch     *anime1.Fetcher
	playlists *playlist.Generator
	recent    *recent.Store
	baseURL   string

	mu      sync.Mutex
	streams map[string]*anime1.ResolvedStream
}

// NewGateway wires the pipeline components into a gateway.
func NewGateway(cfg *config.Config, log *logging.Logger, m *metrics.Metrics,
	fetch *anime1.Fetcher, builder *anime1.Builder, resolver *anime1.Resolver,
	store *recent.Store, baseURL string) *Gateway {

	g := &Gateway{
		cfg:      cfg,
		log:      log.WithComponent("gateway"),
		metrics:  m,
		builder:  builder,
		resolver: resolver,
		fetch:    fetch,
		recent:   store,
		baseURL:  baseURL,
		streams:  make(map[string]*anime1.ResolvedStream),
	}
	g.playlists = playlist.NewGenerator(g.resolveForPlaylist, log)
	return g
}

// VideoRef is one episode's entry in a category descriptor. Its URL points
// at the local stream endpoint, never at the upstream media URL.
type VideoRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Descriptor is the JSON shape served for a resolved upstream page.
type Descriptor struct {
	Type      string            `json:"type"`
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	Category  string            `json:"category,omitempty"`
	Playlists map[string]string `json:"playlists,omitempty"`
	Videos    []VideoRef        `json:"videos,omitempty"`
}

// RecentCategory is one entry of the recency listing.
type RecentCategory struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	Playlists map[string]string `json:"playlists,omitempty"`
}

// ValidPageURL reports whether the URL belongs to the configured upstream
// host. Handlers reject anything else as bad input before fetching.
func (g *Gateway) ValidPageURL(rawURL string) bool {
	return g.builder.ValidPageURL(rawURL)
}

// Describe fetches an arbitrary upstream page URL and returns its JSON
// descriptor: a category with playlist links and episode refs, or a single
// episode.
func (g *Gateway) Describe(ctx context.Context, rawURL string) (*Descriptor, error) {
	g.metrics.UpstreamRequests.WithLabelValues("page").Inc()
	page, err := g.builder.BuildPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if page.Episode != nil {
		ep := page.Episode
		return &Descriptor{
			Type:     "single",
			ID:       ep.ID,
			Title:    ep.Title,
			URL:      playlist.EpisodeStreamURL(g.baseURL, ep.ID),
			Category: ep.CategoryID,
		}, nil
	}

	cat := page.Category
	g.touchRecent(ctx, cat)

	videos := make([]VideoRef, 0, len(cat.Episodes))
	for _, ep := range cat.Episodes {
		videos = append(videos, VideoRef{
			ID:    ep.ID,
			Title: ep.Title,
			URL:   playlist.EpisodeStreamURL(g.baseURL, ep.ID),
		})
	}

	return &Descriptor{
		Type:      "category",
		ID:        cat.ID,
		Title:     cat.Title,
		URL:       g.categoryURL(cat.ID),
		Playlists: g.playlistLinks(cat.ID),
		Videos:    videos,
	}, nil
}

// CategoryPlaylist builds a category from its id and serializes it in the
// requested playlist format.
func (g *Gateway) CategoryPlaylist(ctx context.Context, categoryID string, kind playlist.Kind) (*playlist.Playlist, error) {
	g.metrics.UpstreamRequests.WithLabelValues("page").Inc()
	cat, err := g.builder.Build(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	g.touchRecent(ctx, cat)
	return g.playlists.Build(ctx, kind, cat, g.baseURL)
}

// Recent lists recently served categories, newest first. When extended is
// set each entry carries its playlist link map.
func (g *Gateway) Recent(ctx context.Context, extended bool) ([]RecentCategory, error) {
	entries, err := g.recent.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RecentCategory, 0, len(entries))
	for _, e := range entries {
		rc := RecentCategory{
			ID:    e.ID,
			Title: e.Title,
			URL:   g.categoryURL(e.ID),
		}
		if extended {
			rc.Playlists = g.playlistLinks(e.ID)
		}
		out = append(out, rc)
	}
	return out, nil
}

// ResolveEpisode returns a playable stream for the given post id, fetching
// and resolving the single-post page unless a fresh cached resolution exists.
func (g *Gateway) ResolveEpisode(ctx context.Context, postID string) (*anime1.ResolvedStream, error) {
	if s := g.cachedStream(postID); s != nil {
		return s, nil
	}

	g.metrics.UpstreamRequests.WithLabelValues("page").Inc()
	ep, err := g.builder.Episode(ctx, postID)
	if err != nil {
		g.countResolveFailure(err)
		return nil, err
	}

	return g.resolveAndCache(ctx, *ep)
}

// OpenStream resolves the episode and opens the upstream media response,
// forwarding the client's range headers. A stale cached resolution that the
// CDN rejects is dropped and resolved once more before giving up.
func (g *Gateway) OpenStream(ctx context.Context, postID, rangeHdr, ifRangeHdr string) (*http.Response, *anime1.ResolvedStream, error) {
	stream, err := g.ResolveEpisode(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	resp, err := g.openMedia(ctx, stream, rangeHdr, ifRangeHdr)
	if err == nil {
		return resp, stream, nil
	}
	var fe *anime1.FetchError
	if !errors.As(err, &fe) || fe.Reason != anime1.FetchHTTPStatus {
		return nil, nil, err
	}

	// The CDN rejected the cached credentials; resolve fresh and retry once.
	g.dropStream(postID)
	stream, rerr := g.ResolveEpisode(ctx, postID)
	if rerr != nil {
		return nil, nil, rerr
	}
	resp, err = g.openMedia(ctx, stream, rangeHdr, ifRangeHdr)
	if err != nil {
		return nil, nil, err
	}
	return resp, stream, nil
}

// Close releases the gateway's persistent resources.
func (g *Gateway) Close() error {
	return g.recent.Close()
}

func (g *Gateway) openMedia(ctx context.Context, stream *anime1.ResolvedStream, rangeHdr, ifRangeHdr string) (*http.Response, error) {
	g.metrics.UpstreamRequests.WithLabelValues("media").Inc()
	return g.fetch.OpenMedia(ctx, stream.MediaURL, rangeHdr, ifRangeHdr, stream.Cookies)
}

// resolveForPlaylist backs the direct playlist variants. Resolutions go
// through the same cache as /v requests.
func (g *Gateway) resolveForPlaylist(ctx context.Context, ep anime1.Episode) (string, error) {
	if s := g.cachedStream(ep.ID); s != nil {
		return s.MediaURL, nil
	}
	stream, err := g.resolveAndCache(ctx, ep)
	if err != nil {
		return "", err
	}
	return stream.MediaURL, nil
}

func (g *Gateway) resolveAndCache(ctx context.Context, ep anime1.Episode) (*anime1.ResolvedStream, error) {
	g.metrics.UpstreamRequests.WithLabelValues("api").Inc()
	stream, err := g.resolver.Resolve(ctx, ep)
	if err != nil {
		g.countResolveFailure(err)
		return nil, err
	}

	g.mu.Lock()
	if len(g.streams) >= streamCacheSweep {
		now := time.Now()
		for id, s := range g.streams {
			if s.Expired(now) {
				delete(g.streams, id)
			}
		}
	}
	g.streams[ep.ID] = stream
	g.mu.Unlock()
	return stream, nil
}

func (g *Gateway) cachedStream(postID string) *anime1.ResolvedStream {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.streams[postID]
	if !ok {
		return nil
	}
	if s.Expired(time.Now()) {
		delete(g.streams, postID)
		return nil
	}
	return s
}

func (g *Gateway) dropStream(postID string) {
	g.mu.Lock()
	delete(g.streams, postID)
	g.mu.Unlock()
}

func (g *Gateway) touchRecent(ctx context.Context, cat *anime1.Category) {
	if err := g.recent.Touch(ctx, cat.ID, cat.Title); err != nil {
		g.log.WithError(err).Warn("recency store update failed", "category", cat.ID)
	}
}

func (g *Gateway) categoryURL(id string) string {
	return g.baseURL + "/c/" + id
}

func (g *Gateway) playlistLinks(categoryID string) map[string]string {
	links := make(map[string]string, len(playlist.Kinds))
	for _, k := range playlist.Kinds {
		links[string(k)] = g.categoryURL(categoryID) + "?playlist=" + string(k)
	}
	return links
}

func (g *Gateway) countResolveFailure(err error) {
	var re *anime1.ResolveError
	var fe *anime1.FetchError
	var pe *anime1.ParseError
	var nf *anime1.NotFoundError
	switch {
	case errors.As(err, &re):
		g.metrics.ResolveFailures.WithLabelValues(string(re.Reason)).Inc()
	case errors.As(err, &fe):
		g.metrics.ResolveFailures.WithLabelValues("fetch_" + string(fe.Reason)).Inc()
	case errors.As(err, &pe):
		g.metrics.ResolveFailures.WithLabelValues("parse_" + string(pe.Missing)).Inc()
	case errors.As(err, &nf):
		g.metrics.ResolveFailures.WithLabelValues("not_found").Inc()
	default:
		g.metrics.ResolveFailures.WithLabelValues("other").Inc()
	}
}
