package site

import (
	"golang.org/x/text/language"
)

// negotiator maps Accept-Language preferences onto the site's locales.
type negotiator struct {
	matcher language.Matcher
	locales []string
}

func newNegotiator(defaultLocale string, locales []string) *negotiator {
	// The matcher falls back to its first tag, so the default locale leads.
	ordered := make([]string, 0, len(locales))
	ordered = append(ordered, defaultLocale)
	for _, l := range locales {
		if l != defaultLocale {
			ordered = append(ordered, l)
		}
	}

	tags := make([]language.Tag, len(ordered))
	for i, l := range ordered {
		tags[i] = language.Make(l)
	}
	return &negotiator{
		matcher: language.NewMatcher(tags),
		locales: ordered,
	}
}

func (n *negotiator) match(acceptLanguage string) string {
	desired, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(desired) == 0 {
		return n.locales[0]
	}
	_, idx, confidence := n.matcher.Match(desired...)
	if confidence == language.No || idx < 0 || idx >= len(n.locales) {
		return n.locales[0]
	}
	return n.locales[idx]
}
