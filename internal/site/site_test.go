package site_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Love-Rox/rox-homepage/internal/site"
)

func TestDefaultDefinition(t *testing.T) {
	t.Parallel()
	s, err := site.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if s.Name != "Rox" {
		t.Fatalf("expected brand Rox, got %q", s.Name)
	}
	if s.BaseURL != "https://love-rox.cc" {
		t.Fatalf("unexpected base URL %q", s.BaseURL)
	}
	if !s.HasLocale("en") || !s.HasLocale("ja") || s.HasLocale("fr") {
		t.Fatalf("unexpected locales %v", s.Locales)
	}
	if got := s.T("ja", "error.retry"); got != "再試行" {
		t.Fatalf("expected japanese retry label, got %q", got)
	}
	if got := s.T("fr", "error.retry"); got != "Try Again" {
		t.Fatalf("expected fallback to default locale, got %q", got)
	}
	if got := s.T("en", "no.such.key"); got != "no.such.key" {
		t.Fatalf("expected key echo for missing string, got %q", got)
	}
	if len(s.DocsFor("ja").Categories) == 0 {
		t.Fatalf("expected docs categories for ja")
	}
	if s.URL("/en/docs") != "https://love-rox.cc/en/docs" || s.URL("") != "https://love-rox.cc/" {
		t.Fatalf("unexpected URL joining: %q %q", s.URL("/en/docs"), s.URL(""))
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()
	s, err := site.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	cases := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"ja", "ja"},
		{"ja-JP,ja;q=0.9,en;q=0.8", "ja"},
		{"en-US,en;q=0.9", "en"},
		{"fr-FR,fr;q=0.9", "en"},
		{"fr;q=0.9,ja;q=0.5", "ja"},
		{"not a header;;;", "en"},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			if got := s.Negotiate(tc.header); got != tc.want {
				t.Fatalf("Negotiate(%q): expected %q, got %q", tc.header, tc.want, got)
			}
		})
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":           "",
		"relative base":   "name: X\nbaseURL: /x\nlocales: [en]\nstrings:\n  en: {a: b}\n",
		"unknown default": "name: X\nbaseURL: https://x.test\nlocales: [en]\ndefaultLocale: ja\nstrings:\n  en: {a: b}\n",
		"unknown field":   "name: X\nbaseURL: https://x.test\nlocales: [en]\nbogus: 1\nstrings:\n  en: {a: b}\n",
		"bad locale":      "name: X\nbaseURL: https://x.test\nlocales: [../en]\nstrings:\n  ../en: {a: b}\n",
		"missing strings": "name: X\nbaseURL: https://x.test\nlocales: [en]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := site.Parse([]byte(doc)); !errors.Is(err, site.ErrInvalidDefinition) {
				t.Fatalf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "site.yaml")
	doc := "name: Demo\nbaseURL: https://demo.test/\nlocales: [ja, en]\nstrings:\n  ja: {nav.home: ホーム}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := site.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DefaultLocale != "ja" {
		t.Fatalf("expected first locale to become default, got %q", s.DefaultLocale)
	}
	if s.BaseURL != "https://demo.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", s.BaseURL)
	}
	if got := s.Negotiate("de"); got != "ja" {
		t.Fatalf("expected default locale for unmatched header, got %q", got)
	}
}
