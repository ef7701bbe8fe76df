// Package search provides ripgrep-based full-text search across the localized content tree.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Love-Rox/rox-homepage/internal/content"
)

// DefaultLimit caps the number of matches returned by one search.
const DefaultLimit = 50

var (
	// ErrUnavailable is returned when the ripgrep executable cannot be found.
	ErrUnavailable = errors.New("ripgrep executable not found in PATH")
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Options controls the behavior of a search.
type Options struct {
	Types         []content.Type
	Context       int
	Limit         int
	CaseSensitive bool
}

// Result is a single match inside one document.
type Result struct {
	Type     content.Type  `json:"type"`
	Slug     string        `json:"slug"`
	URL      string        `json:"url"`
	Match    string        `json:"match"`
	LineText string        `json:"lineText"`
	Before   []LineSnippet `json:"before,omitempty"`
	After    []LineSnippet `json:"after,omitempty"`
	Line     int           `json:"line"`
	Column   int           `json:"column"`
}

// LineSnippet captures contextual lines around a match.
type LineSnippet struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

// Service executes ripgrep searches rooted at the content directory.
type Service struct {
	logger *slog.Logger
	root   string
	rg     string
}

// NewService constructs a ripgrep-backed search service.
func NewService(root string, logger *slog.Logger) (*Service, error) {
	if root == "" {
		return nil, errors.New("root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rg, err := exec.LookPath("rg")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &Service{root: abs, rg: rg, logger: logger.With("component", "search")}, nil
}

// Search looks for query as a literal string in the markdown files of one locale.
func (s *Service) Search(ctx context.Context, locale, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if locale == "" || strings.ContainsAny(locale, `/\.`) {
		return nil, fmt.Errorf("invalid locale %q", locale)
	}
	types := opts.Types
	if len(types) == 0 {
		types = []content.Type{content.Docs, content.Blog}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	args := []string{"--json", "--line-number", "--color=never", "--no-heading", "--fixed-strings"}
	if opts.CaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--ignore-case")
	}
	if opts.Context > 0 {
		args = append(args, "-C", strconv.Itoa(opts.Context))
	}
	for _, typ := range types {
		args = append(args, "--glob", string(typ)+"/"+locale+"/*.md")
	}
	args = append(args, "--", query, "./")

	cmd := exec.CommandContext(ctx, s.rg, args...)
	cmd.Dir = s.root

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start rg: %w", err)
	}

	results, err := parseRipgrepJSON(stdout, opts.Context, limit)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	if len(results) >= limit {
		// Output past the limit is discarded.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return s.decorate(locale, results), nil
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return s.decorate(locale, results), nil
		}
		if exitErr != nil {
			return nil, fmt.Errorf("rg error (exit %d): %s", exitErr.ExitCode(), strings.TrimSpace(stderrBuf.String()))
		}
		return nil, err
	}

	return s.decorate(locale, results), nil
}

// decorate derives type, slug and page URL from each match path.
func (s *Service) decorate(locale string, results []Result) []Result {
	out := results[:0]
	for _, r := range results {
		typ, slug, ok := splitContentPath(r.Slug)
		if !ok {
			s.logger.Debug("dropping match outside the content tree", slog.String("path", r.Slug))
			continue
		}
		r.Type = typ
		r.Slug = slug
		r.URL = "/" + locale + "/" + string(typ) + "/" + slug
		out = append(out, r)
	}
	return out
}

func splitContentPath(p string) (content.Type, string, bool) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	parts := strings.Split(p, "/")
	if len(parts) != 3 {
		return "", "", false
	}
	typ, ok := content.ParseType(parts[0])
	if !ok || path.Ext(parts[2]) != ".md" {
		return "", "", false
	}
	return typ, strings.TrimSuffix(parts[2], ".md"), true
}

type rgMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rgMatch struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	Submatches []struct {
		Match struct {
			Text string `json:"text"`
		} `json:"match"`
		Start int `json:"start"`
		End   int `json:"end"`
	} `json:"submatches"`
	LineNumber int `json:"line_number"`
}

type rgContext struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	LineNumber int `json:"line_number"`
}

// parseRipgrepJSON reads ripgrep's JSON stream. Result.Slug temporarily carries the raw path.
//
//nolint:gocognit,gocyclo // JSON parsing with context handling has inherent complexity
func parseRipgrepJSON(r io.Reader, contextN, limit int) ([]Result, error) {
	dec := json.NewDecoder(bufio.NewReader(r))

	contextLines := make(map[string]map[int]string)
	var results []Result

	for len(results) < limit {
		var msg rgMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode ripgrep output: %w", err)
		}

		switch msg.Type {
		case "match":
			var m rgMatch
			if err := json.Unmarshal(msg.Data, &m); err != nil {
				return nil, fmt.Errorf("decode match: %w", err)
			}

			res := Result{
				Slug:     m.Path.Text,
				Line:     m.LineNumber,
				LineText: strings.TrimRight(m.Lines.Text, "\r\n"),
			}

			if len(m.Submatches) > 0 {
				sub := m.Submatches[0]
				res.Match = sub.Match.Text
				res.Column = sub.Start + 1
			}

			if contextN > 0 {
				if ctxLines := contextLines[m.Path.Text]; ctxLines != nil {
					for i := contextN; i >= 1; i-- {
						if line, ok := ctxLines[m.LineNumber-i]; ok {
							res.Before = append(res.Before, LineSnippet{Line: m.LineNumber - i, Text: line})
						}
					}
				}
			}

			results = append(results, res)
		case "context":
			if contextN == 0 {
				continue
			}
			var ctxMsg rgContext
			if err := json.Unmarshal(msg.Data, &ctxMsg); err != nil {
				return nil, fmt.Errorf("decode context: %w", err)
			}
			pathKey := ctxMsg.Path.Text
			if _, ok := contextLines[pathKey]; !ok {
				contextLines[pathKey] = make(map[int]string)
			}
			line := strings.TrimRight(ctxMsg.Lines.Text, "\r\n")
			contextLines[pathKey][ctxMsg.LineNumber] = line
			// Trailing context arrives after its match.
			for i := len(results) - 1; i >= 0 && results[i].Slug == pathKey; i-- {
				if d := ctxMsg.LineNumber - results[i].Line; d > 0 && d <= contextN {
					results[i].After = append(results[i].After, LineSnippet{Line: ctxMsg.LineNumber, Text: line})
				}
			}
		}
	}

	return results, nil
}
