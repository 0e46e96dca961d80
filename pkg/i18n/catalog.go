package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

//go:embed locales/*.yaml
var builtinLocales embed.FS

// Catalog maps locale -> message key -> template.
type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
}

// NewCatalog creates an empty catalog.
func NewCatalog(defaultLocale string) *Catalog {
	return &Catalog{
		defaultLocale: normalizeLocale(defaultLocale),
		messages:      map[string]map[string]string{},
	}
}

// LoadCatalog returns the built-in catalog, overlaid with the *.yaml files of
// dir when dir is set. Files are named after their locale (en.yaml, it-IT.yml).
func LoadCatalog(dir, defaultLocale string) (*Catalog, error) {
	catalog := NewCatalog(defaultLocale)
	sub, err := fs.Sub(builtinLocales, "locales")
	if err != nil {
		return nil, err
	}
	if err := catalog.loadFS(sub); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return catalog, nil
	}
	if err := catalog.loadFS(os.DirFS(dir)); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Locales returns the locales with at least one message, sorted.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.messages))
	for locale := range c.messages {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// ForLocale returns a translator bound to locale.
func (c *Catalog) ForLocale(locale string) Translator {
	return localizedTranslator{catalog: c, locale: normalizeLocale(locale)}
}

// Add inserts translations for a locale.
func (c *Catalog) Add(locale string, entries map[string]string) {
	locale = normalizeLocale(locale)
	if locale == "" {
		return
	}
	if c.messages[locale] == nil {
		c.messages[locale] = map[string]string{}
	}
	for key, value := range entries {
		if strings.TrimSpace(key) == "" {
			continue
		}
		c.messages[locale][key] = value
	}
}

func (c *Catalog) loadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read i18n catalog: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		locale := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("read i18n catalog %s: %w", entry.Name(), err)
		}
		var payload map[string]interface{}
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("decode i18n catalog %s: %w", entry.Name(), err)
		}
		c.Add(locale, flatten(payload, ""))
	}
	return nil
}

type localizedTranslator struct {
	catalog *Catalog
	locale  string
}

func (t localizedTranslator) T(key string, args ...interface{}) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	template := t.catalog.lookup(t.locale, key)
	if template == "" {
		return key
	}
	return applyParams(template, templateArgs(args...))
}

// lookup tries the locale, its base language, then the default locale.
func (c *Catalog) lookup(locale, key string) string {
	for _, candidate := range []string{locale, baseLocale(locale), c.defaultLocale, baseLocale(c.defaultLocale)} {
		if value, ok := c.messages[candidate][key]; ok {
			return value
		}
	}
	return ""
}

func templateArgs(args ...interface{}) map[string]interface{} {
	if len(args) == 1 {
		switch v := args[0].(type) {
		case map[string]interface{}:
			return v
		case Params:
			return v
		}
	}
	params := map[string]interface{}{}
	for idx := 0; idx+1 < len(args); idx += 2 {
		if key, ok := args[idx].(string); ok {
			params[key] = args[idx+1]
		}
	}
	return params
}

func applyParams(template string, params map[string]interface{}) string {
	out := template
	for key, value := range params {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprint(value))
	}
	return out
}

func flatten(payload map[string]interface{}, prefix string) map[string]string {
	out := map[string]string{}
	for key, value := range payload {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		switch node := value.(type) {
		case map[string]interface{}:
			for k, v := range flatten(node, fullKey) {
				out[k] = v
			}
		case string:
			out[fullKey] = node
		}
	}
	return out
}

var localeCleaner = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	return strings.ToLower(localeCleaner.ReplaceAllString(locale, ""))
}

func baseLocale(locale string) string {
	if idx := strings.Index(locale, "-"); idx > 0 {
		return locale[:idx]
	}
	return locale
}
