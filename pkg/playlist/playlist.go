// Package playlist serializes a resolved category into the wire formats
// media players consume. Serializers are pure: they write bytes, they never
// fetch. Direct variants receive pre-resolution through a Resolver callback.
package playlist

import (
	"context"
	"fmt"
	"strings"

	"anime1-proxy-go/pkg/anime1"
	"anime1-proxy-go/pkg/logging"
)

// Kind names one supported playlist format. The _ext variants point players
// at this server's episode endpoints; the plain dpl/xspf variants carry
// pre-resolved upstream URLs to save the extra hop.
type Kind string

const (
	KindM3U8    Kind = "m3u8"
	KindDPL     Kind = "dpl"
	KindDPLExt  Kind = "dpl_ext"
	KindXSPF    Kind = "xspf"
	KindXSPFExt Kind = "xspf_ext"
)

// Kinds lists every supported playlist kind, in descriptor order.
var Kinds = []Kind{KindM3U8, KindDPL, KindDPLExt, KindXSPF, KindXSPFExt}

// ParseKind validates a playlist kind from a query parameter.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindM3U8:
		return KindM3U8, true
	case KindDPL:
		return KindDPL, true
	case KindDPLExt:
		return KindDPLExt, true
	case KindXSPF:
		return KindXSPF, true
	case KindXSPFExt:
		return KindXSPFExt, true
	default:
		return "", false
	}
}

// Resolver resolves one episode to its upstream media URL, used by the
// direct variants.
type Resolver func(ctx context.Context, ep anime1.Episode) (string, error)

// Playlist is a serialized playlist ready to be written to a client.
type Playlist struct {
	Content     []byte
	ContentType string
	FileName    string
}

// Generator builds playlists for categories.
type Generator struct {
	resolve Resolver
	log     *logging.Logger
}

// NewGenerator creates a playlist generator. resolve backs the direct
// variants and may be nil when only external playlists are needed.
func NewGenerator(resolve Resolver, log *logging.Logger) *Generator {
	return &Generator{
		resolve: resolve,
		log:     log.WithComponent("playlist"),
	}
}

// Build serializes cat into the requested format. For direct variants an
// episode that fails to resolve is omitted and logged; one bad episode never
// aborts the playlist.
func (g *Generator) Build(ctx context.Context, kind Kind, cat *anime1.Category, baseURL string) (*Playlist, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	switch kind {
	case KindM3U8:
		return &Playlist{
			Content:     buildM3U8(cat, baseURL),
			ContentType: "application/x-mpegURL",
			FileName:    cat.Title + ".m3u8",
		}, nil
	case KindDPLExt:
		return &Playlist{
			Content:     buildDPL(g.externalEntries(cat, baseURL)),
			ContentType: "text/plain; charset=utf-8",
			FileName:    cat.Title + ".dpl",
		}, nil
	case KindDPL:
		entries, err := g.directEntries(ctx, cat)
		if err != nil {
			return nil, err
		}
		return &Playlist{
			Content:     buildDPL(entries),
			ContentType: "text/plain; charset=utf-8",
			FileName:    cat.Title + ".dpl",
		}, nil
	case KindXSPFExt:
		content, err := buildXSPF(cat, g.externalEntries(cat, baseURL))
		if err != nil {
			return nil, err
		}
		return &Playlist{
			Content:     content,
			ContentType: "application/xspf+xml",
			FileName:    cat.Title + ".xspf",
		}, nil
	case KindXSPF:
		entries, err := g.directEntries(ctx, cat)
		if err != nil {
			return nil, err
		}
		content, err := buildXSPF(cat, entries)
		if err != nil {
			return nil, err
		}
		return &Playlist{
			Content:     content,
			ContentType: "application/xspf+xml",
			FileName:    cat.Title + ".xspf",
		}, nil
	default:
		return nil, fmt.Errorf("unknown playlist kind %q", kind)
	}
}

// entry is one playlist line item after location selection.
type entry struct {
	Title    string
	Location string
}

// EpisodeStreamURL returns the local stream endpoint for one episode id.
func EpisodeStreamURL(baseURL, episodeID string) string {
	return strings.TrimRight(baseURL, "/") + "/v/" + episodeID
}

func (g *Generator) externalEntries(cat *anime1.Category, baseURL string) []entry {
	entries := make([]entry, 0, len(cat.Episodes))
	for _, ep := range cat.Episodes {
		entries = append(entries, entry{
			Title:    ep.Title,
			Location: EpisodeStreamURL(baseURL, ep.ID),
		})
	}
	return entries
}

// directEntries resolves every episode up front. Failed episodes are
// omitted; the error return fires only when no resolver was provided.
func (g *Generator) directEntries(ctx context.Context, cat *anime1.Category) ([]entry, error) {
	if g.resolve == nil {
		return nil, fmt.Errorf("direct playlist requested without a resolver")
	}
	entries := make([]entry, 0, len(cat.Episodes))
	for _, ep := range cat.Episodes {
		mediaURL, err := g.resolve(ctx, ep)
		if err != nil {
			g.log.Warn("omitting unresolvable episode from playlist",
				"category", cat.ID, "episode", ep.ID, "error", err)
			continue
		}
		entries = append(entries, entry{Title: ep.Title, Location: mediaURL})
	}
	return entries, nil
}

// sanitizeLine strips characters that would break line-oriented formats.
func sanitizeLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}
