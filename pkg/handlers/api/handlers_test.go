package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"anime1-proxy-go/pkg/anime1"
	"anime1-proxy-go/pkg/appctx"
	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/httpclient"
	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/metrics"
	"anime1-proxy-go/pkg/recent"
	"anime1-proxy-go/pkg/services"
)

const localBase = "http://gateway.local"

var mediaBytes = bytes.Repeat([]byte("0123456789"), 100)

type fixture struct {
	gateway  *httptest.Server
	upstream *httptest.Server
}

func categoryFixture() string {
	entry := func(id, title string) string {
		return fmt.Sprintf(`<article id="post-%s"><header><h2>%s</h2></header>
<div class="entry-content"><video data-apireq="%%7B%%22p%%22%%3A%%22%s%%22%%7D"></video>
<p><a href="/?cat=90">全集連結</a></p></div></article>`, id, title, id)
	}
	return `<html><head><script>var s = {'categoryID': '90'};</script></head>
<body class="archive category">
<header class="page-header"><h1 class="page-title">進擊的巨人</h1></header>
` + entry("1213", "進擊的巨人 [1]") + entry("1220", "進擊的巨人 [2]") + `
</body></html>`
}

func singlePostFixture() string {
	return `<html><body class="single single-post">
<article id="post-1213"><header><h2>進擊的巨人 [1]</h2></header>
<div class="entry-content"><video data-apireq="%7B%22p%22%3A%221213%22%7D"></video>
<p><a href="/?cat=90">全集連結</a></p></div></article>
</body></html>`
}

// brokenPayloadFixture carries an embed payload in no recognizable encoding.
func brokenPayloadFixture() string {
	return `<html><body class="single single-post">
<article id="post-1299"><header><h2>進擊的巨人 [99]</h2></header>
<div class="entry-content"><video data-apireq="%21%21%21%21"></video></div></article>
</body></html>`
}

// brokenCategoryFixture is a category page whose title anchor is missing.
func brokenCategoryFixture() string {
	return `<html><head><script>var s = {};</script></head>
<body class="archive category">
<article id="post-1300"><header><h2>x [1]</h2></header>
<div class="entry-content"><video data-apireq="%7B%22p%22%3A%221300%22%7D"></video></div></article>
</body></html>`
}

// newFixture stands up stub upstream servers (pages, resolution endpoint,
// media CDN) and the gateway's full handler stack in front of them.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("e"); err != nil || c.Value == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.ServeContent(w, r, "v.mp4", time.Unix(1700000000, 0), bytes.NewReader(mediaBytes))
	}))
	t.Cleanup(media.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("d") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "e", Value: strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)})
		fmt.Fprintf(w, `{"s":[{"src":"%s/v.mp4","type":"video/mp4"}]}`, media.URL)
	}))
	t.Cleanup(apiSrv.Close)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("cat") == "90":
			io.WriteString(w, categoryFixture())
		case r.URL.Query().Get("cat") == "91":
			io.WriteString(w, brokenCategoryFixture())
		case r.URL.Query().Get("cat") != "":
			io.WriteString(w, `<html><body class="home"></body></html>`)
		case r.URL.Path == "/1213":
			io.WriteString(w, singlePostFixture())
		case r.URL.Path == "/1299":
			io.WriteString(w, brokenPayloadFixture())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		BaseURL:        localBase,
		UpstreamBase:   upstream.URL,
		UpstreamAPI:    apiSrv.URL,
		FetchTimeout:   5 * time.Second,
		UpstreamRPS:    100,
		UpstreamBurst:  10,
		UpstreamConns:  4,
		StreamMode:     config.StreamModeProxy,
		RecentDB:       filepath.Join(t.TempDir(), "recent.db"),
		RecentCapacity: 10,
	}
	log := logging.New("error", false, nil)

	client, err := httpclient.New(cfg, log)
	if err != nil {
		t.Fatalf("httpclient.New: %v", err)
	}
	fetcher := anime1.NewFetcher(client, cfg.UpstreamBase, log)
	builder := anime1.NewBuilder(fetcher, cfg.UpstreamBase, log)
	resolver := anime1.NewResolver(fetcher, cfg.UpstreamAPI, log)
	store, err := recent.Open(cfg.RecentDB, cfg.RecentCapacity, log)
	if err != nil {
		t.Fatalf("recent.Open: %v", err)
	}

	ctx := appctx.New(cfg, log)
	m := metrics.New()
	ctx.WithMetrics(m)
	gw := services.NewGateway(cfg, log, m, fetcher, builder, resolver, store, ctx.BaseURL)
	ctx.WithGateway(gw)
	t.Cleanup(func() { gw.Close() })

	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	gwSrv := httptest.NewServer(mux)
	t.Cleanup(gwSrv.Close)

	return &fixture{gateway: gwSrv, upstream: upstream}
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestDescribeCategory(t *testing.T) {
	f := newFixture(t)

	var desc services.Descriptor
	getJSON(t, f.gateway.URL+"/p?url="+f.upstream.URL+"/?cat=90", http.StatusOK, &desc)

	if desc.Type != "category" || desc.ID != "90" || desc.Title != "進擊的巨人" {
		t.Errorf("descriptor = %+v", desc)
	}
	if len(desc.Videos) != 2 || desc.Videos[0].ID != "1213" {
		t.Fatalf("videos = %+v", desc.Videos)
	}
	if want := localBase + "/v/1213"; desc.Videos[0].URL != want {
		t.Errorf("video URL = %q, want %q", desc.Videos[0].URL, want)
	}
	for _, kind := range []string{"m3u8", "dpl", "dpl_ext", "xspf", "xspf_ext"} {
		link, ok := desc.Playlists[kind]
		if !ok {
			t.Errorf("playlist link %q missing", kind)
			continue
		}
		if !strings.HasPrefix(link, localBase+"/c/90") {
			t.Errorf("playlist link %q = %q, not local", kind, link)
		}
	}
}

func TestDescribeSinglePost(t *testing.T) {
	f := newFixture(t)

	var desc services.Descriptor
	getJSON(t, f.gateway.URL+"/p?url="+f.upstream.URL+"/1213", http.StatusOK, &desc)

	if desc.Type != "single" || desc.ID != "1213" {
		t.Errorf("descriptor = %+v", desc)
	}
	if want := localBase + "/v/1213"; desc.URL != want {
		t.Errorf("URL = %q, want %q", desc.URL, want)
	}
	if desc.Category != "90" {
		t.Errorf("category = %q, want %q", desc.Category, "90")
	}
}

func TestDescribeBadInput(t *testing.T) {
	f := newFixture(t)

	var errBody map[string]string
	getJSON(t, f.gateway.URL+"/p", http.StatusBadRequest, &errBody)
	if errBody["error"] == "" {
		t.Error("error body missing")
	}
	getJSON(t, f.gateway.URL+"/p?url=not-a-url", http.StatusBadRequest, nil)
	getJSON(t, f.gateway.URL+"/p?url=https://elsewhere.example/x", http.StatusBadRequest, nil)
}

// An embed payload in an unrecognized encoding must surface as 502, not a
// crash or a misleading 404.
func TestStreamDecodeFailure(t *testing.T) {
	f := newFixture(t)

	var errBody map[string]string
	getJSON(t, f.gateway.URL+"/v/1299", http.StatusBadGateway, &errBody)
	if errBody["error"] == "" {
		t.Error("error body missing")
	}

	// Other requests keep working after the failure.
	getJSON(t, f.gateway.URL+"/v/1213", http.StatusOK, nil)
}

func TestPlaylistUpstreamParseFailure(t *testing.T) {
	f := newFixture(t)

	var errBody map[string]string
	getJSON(t, f.gateway.URL+"/c/91", http.StatusBadGateway, &errBody)
	if errBody["error"] == "" {
		t.Error("error body missing")
	}
	getJSON(t, f.gateway.URL+"/p?url="+f.upstream.URL+"/?cat=91", http.StatusBadGateway, nil)
}

func TestPlaylistDefaultM3U8(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.gateway.URL + "/c/90")
	if err != nil {
		t.Fatalf("GET /c/90: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-mpegURL" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body, _ := io.ReadAll(resp.Body)
	content := string(body)
	if !strings.HasPrefix(content, "#EXTM3U\n") {
		t.Fatalf("not an m3u8:\n%s", content)
	}
	if !strings.Contains(content, localBase+"/v/1213") || !strings.Contains(content, localBase+"/v/1220") {
		t.Errorf("local stream URIs missing:\n%s", content)
	}
}

func TestPlaylistDirectDPL(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.gateway.URL + "/c/90?playlist=dpl")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	content := string(body)

	if !strings.HasPrefix(content, "DAUMPLAYLIST\n") {
		t.Fatalf("not a dpl:\n%s", content)
	}
	// Direct variant carries the resolved upstream URL, not local endpoints.
	if !strings.Contains(content, "/v.mp4") {
		t.Errorf("resolved media URL missing:\n%s", content)
	}
	if strings.Contains(content, localBase) {
		t.Errorf("direct playlist points at local endpoints:\n%s", content)
	}
}

func TestPlaylistErrors(t *testing.T) {
	f := newFixture(t)

	getJSON(t, f.gateway.URL+"/c/90?playlist=bogus", http.StatusBadRequest, nil)
	getJSON(t, f.gateway.URL+"/c/999", http.StatusNotFound, nil)
}

func TestStreamRedirectMode(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, f.gateway.URL+"/v/1213?mode=redirect", nil)
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.HasSuffix(loc, "/v.mp4") {
		t.Errorf("Location = %q", loc)
	}
}

func TestStreamProxyFull(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.gateway.URL + "/v/1213")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, mediaBytes) {
		t.Errorf("relayed %d bytes, want %d", len(body), len(mediaBytes))
	}
	if ar := resp.Header.Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q", ar)
	}
}

func TestStreamProxyRange(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, f.gateway.URL+"/v/1213", nil)
	req.Header.Set("Range", "bytes=10-19")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "bytes 10-19/1000" {
		t.Errorf("Content-Range = %q", cr)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, mediaBytes[10:20]) {
		t.Errorf("body = %q", body)
	}
}

func TestStreamBadMode(t *testing.T) {
	f := newFixture(t)
	getJSON(t, f.gateway.URL+"/v/1213?mode=carrier-pigeon", http.StatusBadRequest, nil)
}

func TestStreamUnknownEpisode(t *testing.T) {
	f := newFixture(t)
	getJSON(t, f.gateway.URL+"/v/424242", http.StatusNotFound, nil)
}

func TestRecentListing(t *testing.T) {
	f := newFixture(t)

	var empty []services.RecentCategory
	getJSON(t, f.gateway.URL+"/l", http.StatusOK, &empty)
	if len(empty) != 0 {
		t.Fatalf("fresh store not empty: %v", empty)
	}

	// Building a category records it.
	getJSON(t, f.gateway.URL+"/p?url="+f.upstream.URL+"/?cat=90", http.StatusOK, nil)

	var list []services.RecentCategory
	getJSON(t, f.gateway.URL+"/l", http.StatusOK, &list)
	if len(list) != 1 || list[0].ID != "90" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Playlists != nil {
		t.Error("plain listing must not carry playlist links")
	}

	var extended []services.RecentCategory
	getJSON(t, f.gateway.URL+"/l?ex=1", http.StatusOK, &extended)
	if len(extended) != 1 || extended[0].Playlists["m3u8"] == "" {
		t.Fatalf("extended list = %+v", extended)
	}
}

func TestHealthAndIndex(t *testing.T) {
	f := newFixture(t)

	var health map[string]string
	getJSON(t, f.gateway.URL+"/healthz", http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err := http.Get(f.gateway.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "/v/{postId}") {
		t.Errorf("index status=%d body=%q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	getJSON(t, f.gateway.URL+"/p?url="+f.upstream.URL+"/?cat=90", http.StatusOK, nil)

	resp, err := http.Get(f.gateway.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "gateway_upstream_requests_total") {
		t.Errorf("upstream counter missing from exposition:\n%.400s", body)
	}
}
