package i18n

import "context"

type contextKey string

const (
	localeContextKey     contextKey = "listquery.i18n.locale"
	translatorContextKey contextKey = "listquery.i18n.translator"
)

// WithLocale stores the resolved locale in ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey, locale)
}

// GetLocale returns the locale stored in ctx, or "".
func GetLocale(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	locale, _ := ctx.Value(localeContextKey).(string)
	return locale
}

// WithTranslator stores a translator in ctx.
func WithTranslator(ctx context.Context, translator Translator) context.Context {
	return context.WithValue(ctx, translatorContextKey, translator)
}

// TranslatorFromContext returns the translator in ctx. Without one, keys are
// returned unchanged so callers fall back to their own message.
func TranslatorFromContext(ctx context.Context) Translator {
	if ctx == nil {
		return keyTranslator{}
	}
	translator, _ := ctx.Value(translatorContextKey).(Translator)
	if translator == nil {
		return keyTranslator{}
	}
	return translator
}

type keyTranslator struct{}

func (keyTranslator) T(key string, _ ...interface{}) string { return key }
