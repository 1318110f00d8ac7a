// Package api provides the gateway's HTTP handlers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"anime1-proxy-go/pkg/anime1"
	"anime1-proxy-go/pkg/appctx"
	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/playlist"
)

// relayHeaders are copied from the upstream media response to the client.
var relayHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
}

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /p", h.handleDescribe)
	mux.HandleFunc("GET /l", h.handleRecent)
	mux.HandleFunc("GET /c/{categoryID}", h.handlePlaylist)
	mux.HandleFunc("GET /v/{postID}", h.handleStream)
	mux.HandleFunc("HEAD /v/{postID}", h.handleStream)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
}

// handleIndex serves a plain-text usage summary.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, `anime1 gateway

GET /p?url=<page url>          JSON descriptor for a category or episode page
GET /l[?ex=1]                  recently served categories (ex=1 adds playlist links)
GET /c/{categoryId}            playlist for a category; ?playlist= one of %v
GET /v/{postId}                episode stream (?mode=proxy|redirect)
GET /healthz                   liveness
GET /metrics                   Prometheus metrics
`, playlist.Kinds)
}

// handleDescribe resolves an arbitrary upstream page URL to a JSON descriptor.
func (h *Handlers) handleDescribe(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		h.writeError(w, http.StatusBadRequest, "unparsable url")
		return
	}
	if !h.ctx.Gateway.ValidPageURL(rawURL) {
		h.writeError(w, http.StatusBadRequest, "url not on the upstream host")
		return
	}

	desc, err := h.ctx.Gateway.Describe(r.Context(), rawURL)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, desc)
}

// handleRecent lists recently served categories.
func (h *Handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	extended := r.URL.Query().Get("ex") == "1"
	list, err := h.ctx.Gateway.Recent(r.Context(), extended)
	if err != nil {
		h.log.WithError(err).Error("recency listing failed")
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// handlePlaylist serves a category in the requested playlist format.
func (h *Handlers) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	categoryID := r.PathValue("categoryID")

	kind := playlist.KindM3U8
	if raw := r.URL.Query().Get("playlist"); raw != "" {
		parsed, ok := playlist.ParseKind(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown playlist kind: "+raw)
			return
		}
		kind = parsed
	}

	pl, err := h.ctx.Gateway.CategoryPlaylist(r.Context(), categoryID, kind)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", pl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": pl.FileName,
	}))
	w.Write(pl.Content)
}

// handleStream serves one episode's media, either as a redirect to the
// resolved upstream URL or by relaying the bytes.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")

	mode := h.ctx.Config.StreamMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, ok := config.ValidStreamMode(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown mode: "+raw)
			return
		}
		mode = parsed
	}

	if mode == config.StreamModeRedirect {
		stream, err := h.ctx.Gateway.ResolveEpisode(r.Context(), postID)
		if err != nil {
			h.writeUpstreamError(w, r, err)
			return
		}
		http.Redirect(w, r, stream.MediaURL, http.StatusFound)
		return
	}

	resp, stream, err := h.ctx.Gateway.OpenStream(r.Context(),
		postID, r.Header.Get("Range"), r.Header.Get("If-Range"))
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	for _, name := range relayHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" && stream.MIMEType != "" {
		w.Header().Set("Content-Type", stream.MIMEType)
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Clients abandon streams constantly; only worth a debug line.
		h.log.Debug("stream relay ended", "post", postID, "error", err)
	}
}

// handleHealth reports liveness.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeUpstreamError maps pipeline errors to HTTP statuses: missing upstream
// resources are 404, everything upstream-shaped is 502.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var nf *anime1.NotFoundError
	if errors.As(err, &nf) {
		h.writeError(w, http.StatusNotFound, nf.Error())
		return
	}

	var fe *anime1.FetchError
	var pe *anime1.ParseError
	var re *anime1.ResolveError
	if errors.As(err, &fe) || errors.As(err, &pe) || errors.As(err, &re) {
		h.log.WithError(err).Error("upstream failure", "path", r.URL.Path)
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.log.WithError(err).Error("request failed", "path", r.URL.Path)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
