package server

import (
	"net/http"
	"net/url"
	"strings"
)

// csrfMiddleware rejects state-changing requests whose Origin or Referer is neither
// the requested host nor one of trustedOrigins. Safe methods pass through.
func csrfMiddleware(trustedOrigins ...string) middleware {
	trusted := make(map[string]struct{}, len(trustedOrigins))
	for _, o := range trustedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			trusted[normalizeHost(u.Host)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !isValidOrigin(r, trusted) {
				if strings.HasPrefix(r.URL.Path, "/api/") {
					respondJSON(w, http.StatusForbidden, errorResponse("Forbidden: Invalid origin"))
					return
				}
				http.Error(w, "Forbidden: Invalid origin", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidOrigin checks if the request comes from the served host or a trusted origin.
func isValidOrigin(r *http.Request, trusted map[string]struct{}) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	requestHost := r.Host
	if requestHost == "" {
		requestHost = r.URL.Host
	}

	originHost := normalizeHost(originURL.Host)
	if originHost == normalizeHost(requestHost) {
		return true
	}
	_, ok := trusted[originHost]
	return ok
}

// normalizeHost drops the port and treats loopback names as one host.
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[:end+1]
		}
	} else if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}

	switch host {
	case "localhost", "127.0.0.1", "[::1]":
		return "localhost"
	}
	return strings.ToLower(host)
}
