package anime1

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	categoryIDPattern   = regexp.MustCompile(`'categoryID':\s*'(.*?)'`)
	episodeIndexPattern = regexp.MustCompile(`.*?\[(\d+)]`)
)

// PageKind describes what an upstream page turned out to be.
type PageKind int

const (
	PageUnknown PageKind = iota
	PageCategory
	PageSinglePost
)

// DetectPageKind inspects the body classes of a parsed page.
func DetectPageKind(doc *goquery.Document) PageKind {
	classes, _ := doc.Find("body").First().Attr("class")
	fields := strings.Fields(classes)
	for _, c := range fields {
		if c == "category" {
			return PageCategory
		}
		if c == "single-post" {
			return PageSinglePost
		}
	}
	return PageUnknown
}

// ParseDocument builds a queryable tree from raw page bytes. goquery is
// lenient: partial or slightly malformed HTML still yields a usable tree.
func ParseDocument(html []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(html))
}

// ExtractCategory pulls the category id, title, and episode entries from a
// category page. Episodes come back in page order; ordering and
// deduplication policy live in the builder.
func ExtractCategory(doc *goquery.Document) (*Category, error) {
	script := doc.Find("script").First().Text()
	m := categoryIDPattern.FindStringSubmatch(script)
	title := strings.TrimSpace(doc.Find("header.page-header h1.page-title").First().Text())
	if m == nil || title == "" {
		return nil, &ParseError{Missing: MissingTitle}
	}

	episodes := extractEpisodes(doc)
	if len(episodes) == 0 {
		return nil, &ParseError{Missing: MissingEpisodeList}
	}

	return &Category{
		ID:       m[1],
		Title:    title,
		Episodes: episodes,
	}, nil
}

// ExtractPost pulls the single episode from a single-post page.
func ExtractPost(doc *goquery.Document) (*Episode, error) {
	episodes := extractEpisodes(doc)
	if len(episodes) == 0 {
		return nil, &ParseError{Missing: MissingEpisodeList}
	}
	ep := episodes[0]
	if ep.payload == "" {
		return nil, &ParseError{Missing: MissingEmbedPayload}
	}
	return &ep, nil
}

// extractEpisodes walks the article entries of a page. Entries without a
// numeric post id are dropped rather than failing the whole page.
func extractEpisodes(doc *goquery.Document) []Episode {
	var episodes []Episode
	doc.Find("article[id]").Each(func(_ int, article *goquery.Selection) {
		rawID, _ := article.Attr("id")
		id, ok := postIDFromAttr(rawID)
		if !ok {
			return
		}

		header := article.Find("header").First()
		title := strings.TrimSpace(header.Find("h2").First().Text())
		published, _ := header.Find("time").First().Attr("datetime")

		content := article.Find("div.entry-content").First()
		video := content.Find("video[data-apireq]").First()
		payload, _ := video.Attr("data-apireq")
		if unescaped, err := url.QueryUnescape(payload); err == nil {
			payload = unescaped
		}

		ep := Episode{
			ID:        id,
			Title:     title,
			Published: published,
			order:     -1,
			payload:   strings.TrimSpace(payload),
		}
		if m := episodeIndexPattern.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				ep.order = n
			}
		}

		content.Find("p a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			switch strings.TrimSpace(a.Text()) {
			case "全集連結":
				ep.CategoryID = idFromQueryHref(href)
			case "下一集":
				ep.NextID = idFromQueryHref(href)
			}
			return true
		})

		episodes = append(episodes, ep)
	})
	return episodes
}

// postIDFromAttr turns "post-1213" into "1213".
func postIDFromAttr(attr string) (string, bool) {
	_, id, found := strings.Cut(attr, "-")
	if !found {
		return "", false
	}
	if _, err := strconv.Atoi(id); err != nil {
		return "", false
	}
	return id, true
}

// idFromQueryHref extracts the trailing id from hrefs of either form the
// entry links use: "/?cat=90" or "https://host/1220".
func idFromQueryHref(href string) string {
	if i := strings.LastIndex(href, "="); i >= 0 {
		return href[i+1:]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	if _, err := strconv.Atoi(href); err == nil {
		return href
	}
	return ""
}
