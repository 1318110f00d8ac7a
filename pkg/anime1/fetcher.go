package anime1

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"anime1-proxy-go/pkg/httpclient"
	"anime1-proxy-go/pkg/logging"

	"github.com/andybalholm/brotli"
)

// pageBodyLimit caps how much of an upstream page we are willing to read.
const pageBodyLimit = 8 << 20

// Fetcher issues single outbound requests to the upstream site. It is
// stateless apart from the shared client; retry policy belongs to callers.
type Fetcher struct {
	client *httpclient.Client
	base   string // e.g. https://anime1.me
	log    *logging.Logger
}

// NewFetcher creates a fetcher for the given upstream base URL.
func NewFetcher(client *httpclient.Client, base string, log *logging.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		base:   strings.TrimRight(base, "/"),
		log:    log.WithComponent("fetcher"),
	}
}

// Fetch GETs one upstream page and returns its decoded bytes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: FetchNetwork, Err: err}
	}
	f.setPageHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: rawURL, Reason: FetchHTTPStatus, Status: resp.StatusCode}
	}

	body, err := readDecoded(resp)
	if err != nil {
		return nil, classifyFetchErr(rawURL, err)
	}
	return body, nil
}

// PostForm POSTs a form to the resolution endpoint and returns the decoded
// body together with any cookies the endpoint set.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, []*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, &FetchError{URL: rawURL, Reason: FetchNetwork, Err: err}
	}
	f.setAPIHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, classifyFetchErr(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &FetchError{URL: rawURL, Reason: FetchHTTPStatus, Status: resp.StatusCode}
	}

	body, err := readDecoded(resp)
	if err != nil {
		return nil, nil, classifyFetchErr(rawURL, err)
	}
	return body, resp.Cookies(), nil
}

// OpenMedia opens the resolved media URL for relaying. The caller owns the
// response and must close its body; cancellation of ctx aborts the transfer.
func (f *Fetcher) OpenMedia(ctx context.Context, rawURL, rangeHdr, ifRangeHdr string, cookies []*http.Cookie) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: FetchNetwork, Err: err}
	}
	f.setMediaHeaders(req, rangeHdr, ifRangeHdr)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := f.client.DoMedia(req)
	if err != nil {
		return nil, classifyFetchErr(rawURL, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &FetchError{URL: rawURL, Reason: FetchHTTPStatus, Status: resp.StatusCode}
	}
	return resp, nil
}

func (f *Fetcher) setPageHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Referer", f.base+"/")
	req.Header.Set("User-Agent", f.client.UserAgent())
}

func (f *Fetcher) setAPIHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", f.base)
	req.Header.Set("Referer", f.base+"/")
	req.Header.Set("User-Agent", f.client.UserAgent())
}

func (f *Fetcher) setMediaHeaders(req *http.Request, rangeHdr, ifRangeHdr string) {
	req.Header.Set("Accept", "*/*")
	// Media bytes are relayed verbatim; a compressed body would break
	// range semantics for the player.
	req.Header.Set("Accept-Encoding", "identity;q=1, *;q=0")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", f.base+"/")
	req.Header.Set("User-Agent", f.client.UserAgent())
	if rangeHdr != "" {
		req.Header.Set("Range", rangeHdr)
	}
	if ifRangeHdr != "" {
		req.Header.Set("If-Range", ifRangeHdr)
	}
}

// readDecoded reads the body, undoing the content encoding we advertised.
// Setting Accept-Encoding by hand disables Go's automatic gzip handling.
func readDecoded(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close()
		r = fr
	}
	return io.ReadAll(io.LimitReader(r, pageBodyLimit))
}

func classifyFetchErr(rawURL string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{URL: rawURL, Reason: FetchTimeout, Err: err}
	}
	return &FetchError{URL: rawURL, Reason: FetchNetwork, Err: err}
}
