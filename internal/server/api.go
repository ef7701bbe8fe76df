package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Love-Rox/rox-homepage/internal/contact"
	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/ogimage"
	"github.com/Love-Rox/rox-homepage/internal/search"
	"github.com/Love-Rox/rox-homepage/internal/seo"
)

const (
	ogCacheControl     = "public, max-age=31536000, immutable"
	hourlyCacheControl = "public, max-age=3600"
	maxSearchLimit     = 200
)

func (s *Server) handleOG(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	title := ogimage.NormalizeTitle(r.URL.Query().Get("title"))

	var (
		img         []byte
		err         error
		contentType = "image/png"
	)
	if strings.EqualFold(r.URL.Query().Get("format"), "svg") {
		contentType = "image/svg+xml"
		img, err = s.og.RenderSVG(ctx, title)
	} else {
		img, err = s.og.Render(ctx, title)
	}
	if err != nil {
		w.Header().Set("Cache-Control", "no-cache")
		if errors.Is(err, ogimage.ErrAssetLoad) {
			http.Error(w, "Failed to load assets: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.logger.ErrorContext(ctx, "render preview image failed", slog.Any("err", err), slog.String("title", title))
		http.Error(w, "Failed to render image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", ogCacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		s.logger.DebugContext(ctx, "write preview image failed", slog.Any("err", err))
	}
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	info, err := s.releases.Latest(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "fetch releases failed", slog.Any("err", err))
		w.Header().Set("Cache-Control", "no-cache")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "Failed to fetch releases",
			"stable":     nil,
			"prerelease": nil,
		})
		return
	}
	w.Header().Set("Cache-Control", hourlyCacheControl)
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var sub contact.Submission
	if err := decodeJSON(r, &sub); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse("Invalid request body"))
		return
	}
	if !s.site.HasLocale(sub.Lang) {
		sub.Lang = s.preferredLocale(r)
	}

	err := s.contact.Submit(ctx, sub, clientIP(r))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Emails sent successfully",
		})
	case errors.Is(err, contact.ErrMissingFields):
		respondJSON(w, http.StatusBadRequest, errorResponse("Missing required fields"))
	case errors.Is(err, contact.ErrInvalidEmail):
		respondJSON(w, http.StatusBadRequest, errorResponse("Invalid email address"))
	case errors.Is(err, contact.ErrFieldTooLong):
		respondJSON(w, http.StatusBadRequest, errorResponse("Field too long"))
	case errors.Is(err, contact.ErrInvalidToken):
		respondJSON(w, http.StatusForbidden, errorResponse("Invalid security token"))
	default:
		s.logger.ErrorContext(ctx, "contact submission failed", slog.Any("err", err))
		respondJSON(w, http.StatusInternalServerError, errorResponse("Failed to send email"))
	}
}

// clientIP prefers the address reported by the edge proxy.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.search == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse("search is not available"))
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("q parameter is required"))
		return
	}
	lang := q.Get("lang")
	if lang == "" {
		lang = s.preferredLocale(r)
	}
	if !s.site.HasLocale(lang) {
		respondJSON(w, http.StatusBadRequest, errorResponse("unsupported language"))
		return
	}

	opts := search.Options{Context: 1}
	if raw := q.Get("type"); raw != "" {
		typ, ok := content.ParseType(raw)
		if !ok {
			respondJSON(w, http.StatusBadRequest, errorResponse("type must be docs or blog"))
			return
		}
		opts.Types = []content.Type{typ}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse("limit must be a positive integer"))
			return
		}
		opts.Limit = min(n, maxSearchLimit)
	}

	results, err := s.search.Search(ctx, lang, query, opts)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			respondJSON(w, http.StatusBadRequest, errorResponse("q parameter is required"))
			return
		}
		s.logger.ErrorContext(ctx, "search failed", slog.Any("err", err), slog.String("query", query))
		respondJSON(w, http.StatusInternalServerError, errorResponse("search failed"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.watcher.Subscribe(ctx)

	if _, err := w.Write([]byte(": ready\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := encodeJSON(evt)
			if err != nil {
				s.logger.WarnContext(ctx, "encode sse event failed", slog.Any("err", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRobots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", hourlyCacheControl)
	_, _ = w.Write([]byte(seo.Robots(s.site.BaseURL)))
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blog, err := seo.CollectSlugs(ctx, s.content, s.site, content.Blog)
	if err != nil {
		s.logger.ErrorContext(ctx, "collect blog slugs failed", slog.Any("err", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	docs, err := seo.CollectSlugs(ctx, s.content, s.site, content.Docs)
	if err != nil {
		s.logger.ErrorContext(ctx, "collect doc slugs failed", slog.Any("err", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if _, err := seo.BuildSitemap(s.site, blog, docs).WriteTo(&buf); err != nil {
		s.logger.ErrorContext(ctx, "encode sitemap failed", slog.Any("err", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", hourlyCacheControl)
	_, _ = buf.WriteTo(w)
}
