// Package i18n resolves the caller's locale and puts a catalog-bound
// translator on the request context, so error envelopes are localized.
package i18n

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/server/router"
)

// LocaleContextKey is the router.Context key holding the resolved locale.
const LocaleContextKey = "locale"

// Config controls locale resolution. The locale is never read from the query
// string, where every non-reserved key is a list filter.
type Config struct {
	DefaultLocale        string
	HeaderName           string
	ExcludedPathPrefixes []string
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		DefaultLocale:        "en",
		HeaderName:           "X-Locale",
		ExcludedPathPrefixes: []string{"/metrics", "/health", "/version"},
	}
}

// Middleware resolves the locale among the catalog's locales, preferring the
// explicit header over Accept-Language.
func Middleware(catalog *i18n.Catalog, cfg Config) router.MiddlewareFunc {
	if strings.TrimSpace(cfg.DefaultLocale) == "" {
		cfg.DefaultLocale = DefaultConfig().DefaultLocale
	}
	supported := map[string]struct{}{}
	for _, locale := range catalog.Locales() {
		supported[locale] = struct{}{}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if req == nil || isExcluded(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			locale := resolveLocale(req, cfg, supported)
			ctx := i18n.WithLocale(req.Context(), locale)
			ctx = i18n.WithTranslator(ctx, catalog.ForLocale(locale))
			c.SetRequest(req.WithContext(ctx))
			c.Set(LocaleContextKey, locale)

			h := c.Response().Header()
			h.Set("Content-Language", locale)
			appendVary(h, "Accept-Language")
			if cfg.HeaderName != "" {
				appendVary(h, cfg.HeaderName)
			}
			return next(c)
		}
	}
}

func isExcluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func resolveLocale(r *http.Request, cfg Config, supported map[string]struct{}) string {
	candidates := make([]string, 0, 4)
	if cfg.HeaderName != "" {
		if value := strings.TrimSpace(r.Header.Get(cfg.HeaderName)); value != "" {
			candidates = append(candidates, value)
		}
	}
	candidates = append(candidates, parseAcceptLanguage(r.Header.Get("Accept-Language"))...)

	for _, candidate := range candidates {
		norm := normalizeLocale(candidate)
		if _, ok := supported[norm]; ok {
			return norm
		}
		if base := baseLocale(norm); base != "" {
			if _, ok := supported[base]; ok {
				return base
			}
		}
	}
	return normalizeLocale(cfg.DefaultLocale)
}

type langQ struct {
	lang string
	q    float64
}

// parseAcceptLanguage returns the languages of an Accept-Language header,
// highest weight first. Zero weights and "*" are dropped.
func parseAcceptLanguage(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]langQ, 0, len(parts))
	for _, part := range parts {
		sections := strings.Split(strings.TrimSpace(part), ";")
		lang := strings.TrimSpace(sections[0])
		if lang == "" || lang == "*" {
			continue
		}
		q := 1.0
		for _, section := range sections[1:] {
			kv := strings.SplitN(strings.TrimSpace(section), "=", 2)
			if len(kv) != 2 || strings.ToLower(kv[0]) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(kv[1], 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		items = append(items, langQ{lang: lang, q: q})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].q > items[j].q
	})
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.lang)
	}
	return out
}

func appendVary(header http.Header, value string) {
	current := header.Get("Vary")
	if current == "" {
		header.Set("Vary", value)
		return
	}
	for _, part := range strings.Split(current, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}
	header.Set("Vary", current+", "+value)
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(locale, "_", "-")))
}

func baseLocale(locale string) string {
	if idx := strings.Index(locale, "-"); idx > 0 {
		return locale[:idx]
	}
	return locale
}
