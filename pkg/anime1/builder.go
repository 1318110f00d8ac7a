package anime1

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"anime1-proxy-go/pkg/logging"

	"github.com/PuerkitoBio/goquery"
)

// Builder assembles extractor output into canonical Category and Episode
// values. Stream resolution stays deferred: listing a category must not
// multiply upstream load by resolving every episode eagerly.
type Builder struct {
	fetch *Fetcher
	base  string
	host  string
	log   *logging.Logger
}

// PageResult is what an arbitrary upstream URL turned out to contain.
type PageResult struct {
	Category *Category // set for category pages
	Episode  *Episode  // set for single-post pages
}

// NewBuilder creates a builder for the given upstream base URL.
func NewBuilder(fetch *Fetcher, base string, log *logging.Logger) *Builder {
	host := base
	if u, err := url.Parse(base); err == nil {
		host = u.Hostname()
	}
	return &Builder{
		fetch: fetch,
		base:  strings.TrimRight(base, "/"),
		host:  host,
		log:   log.WithComponent("builder"),
	}
}

// CategoryURL maps a raw category id to its canonical page URL.
func (b *Builder) CategoryURL(id string) string {
	return b.base + "/?" + url.Values{"cat": {id}}.Encode()
}

// PostURL maps a post id to its page URL.
func (b *Builder) PostURL(id string) string {
	return b.base + "/" + id
}

// ValidPageURL reports whether rawURL points at the upstream host.
func (b *Builder) ValidPageURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	return strings.HasSuffix(parsed.Hostname(), b.host)
}

// Build fetches and assembles a category from a full URL or a raw numeric id.
func (b *Builder) Build(ctx context.Context, urlOrID string) (*Category, error) {
	pageURL := urlOrID
	id := urlOrID
	if _, err := strconv.Atoi(urlOrID); err == nil {
		pageURL = b.CategoryURL(urlOrID)
	} else if !b.ValidPageURL(urlOrID) {
		return nil, &NotFoundError{Kind: "category", ID: urlOrID}
	}

	doc, err := b.fetchDocument(ctx, pageURL, "category", id)
	if err != nil {
		return nil, err
	}
	if DetectPageKind(doc) != PageCategory {
		// Unknown ids come back as a generic page without the category
		// body class, not as an HTTP error.
		return nil, &NotFoundError{Kind: "category", ID: id}
	}

	cat, err := ExtractCategory(doc)
	if err != nil {
		return nil, err
	}
	cat.Episodes = normalizeEpisodes(cat.Episodes)
	if len(cat.Episodes) == 0 {
		return nil, &ParseError{Missing: MissingEpisodeList}
	}
	b.log.Debug("built category", "id", cat.ID, "episodes", len(cat.Episodes))
	return cat, nil
}

// BuildPage fetches an arbitrary upstream URL and classifies it.
func (b *Builder) BuildPage(ctx context.Context, rawURL string) (*PageResult, error) {
	if !b.ValidPageURL(rawURL) {
		return nil, &NotFoundError{Kind: "category", ID: rawURL}
	}

	doc, err := b.fetchDocument(ctx, rawURL, "category", rawURL)
	if err != nil {
		return nil, err
	}

	switch DetectPageKind(doc) {
	case PageCategory:
		cat, err := ExtractCategory(doc)
		if err != nil {
			return nil, err
		}
		cat.Episodes = normalizeEpisodes(cat.Episodes)
		return &PageResult{Category: cat}, nil
	case PageSinglePost:
		ep, err := ExtractPost(doc)
		if err != nil {
			return nil, err
		}
		return &PageResult{Episode: ep}, nil
	default:
		return nil, &NotFoundError{Kind: "category", ID: rawURL}
	}
}

// Episode fetches the single-post page for one post id.
func (b *Builder) Episode(ctx context.Context, postID string) (*Episode, error) {
	if _, err := strconv.Atoi(postID); err != nil {
		return nil, &NotFoundError{Kind: "episode", ID: postID}
	}

	doc, err := b.fetchDocument(ctx, b.PostURL(postID), "episode", postID)
	if err != nil {
		return nil, err
	}
	if DetectPageKind(doc) != PageSinglePost {
		return nil, &NotFoundError{Kind: "episode", ID: postID}
	}
	return ExtractPost(doc)
}

func (b *Builder) fetchDocument(ctx context.Context, pageURL, kind, id string) (*goquery.Document, error) {
	body, err := b.fetch.Fetch(ctx, pageURL)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Reason == FetchHTTPStatus && fe.Status == 404 {
			return nil, &NotFoundError{Kind: kind, ID: id}
		}
		return nil, err
	}
	return ParseDocument(body)
}

// normalizeEpisodes enforces upstream display order and id uniqueness.
// When every episode's title carries an "[n]" index we sort by it;
// otherwise the page lists newest first and is reversed. Duplicate ids from
// malformed markup keep the first occurrence.
func normalizeEpisodes(episodes []Episode) []Episode {
	seen := make(map[string]struct{}, len(episodes))
	deduped := episodes[:0:0]
	allOrdered := true
	for _, ep := range episodes {
		if _, dup := seen[ep.ID]; dup {
			continue
		}
		seen[ep.ID] = struct{}{}
		if ep.order < 0 {
			allOrdered = false
		}
		deduped = append(deduped, ep)
	}

	if allOrdered {
		sort.SliceStable(deduped, func(i, j int) bool {
			return deduped[i].order < deduped[j].order
		})
	} else {
		for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
			deduped[i], deduped[j] = deduped[j], deduped[i]
		}
	}
	return deduped
}
