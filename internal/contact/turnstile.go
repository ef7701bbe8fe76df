package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTurnstileURL is Cloudflare's siteverify endpoint.
const DefaultTurnstileURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Turnstile verifies tokens against Cloudflare Turnstile.
type Turnstile struct {
	http   *http.Client
	logger *slog.Logger
	url    string
	secret string
}

// NewTurnstile returns a verifier. An empty secret makes every token invalid.
func NewTurnstile(secret, endpoint string, timeout time.Duration, logger *slog.Logger) *Turnstile {
	if endpoint == "" {
		endpoint = DefaultTurnstileURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Turnstile{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "turnstile"),
		url:    endpoint,
		secret: secret,
	}
}

type siteverifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether Cloudflare accepted token.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if t.secret == "" {
		t.logger.ErrorContext(ctx, "turnstile secret is not configured")
		return false, nil
	}

	body, err := json.Marshal(siteverifyRequest{Secret: t.secret, Response: token, RemoteIP: remoteIP})
	if err != nil {
		return false, fmt.Errorf("encode siteverify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return false, fmt.Errorf("decode siteverify response (%s): %w", resp.Status, err)
	}
	if !out.Success {
		t.logger.DebugContext(ctx, "turnstile rejected token", slog.Any("codes", out.ErrorCodes))
	}
	return out.Success, nil
}
