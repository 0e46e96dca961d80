package i18n

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalog_BaseLocaleAndParams(t *testing.T) {
	catalog := NewCatalog("en")
	catalog.Add("en", map[string]string{"validation.list_query.limit_too_large": "limit exceeds {max}"})
	catalog.Add("it", map[string]string{"validation.list_query.limit_too_large": "limit supera {max}"})

	got := catalog.ForLocale("it_IT").T("validation.list_query.limit_too_large", Params{"max": 100})
	if got != "limit supera 100" {
		t.Fatalf("unexpected translation: %q", got)
	}
	got = catalog.ForLocale("fr").T("validation.list_query.limit_too_large", "max", 50)
	if got != "limit exceeds 50" {
		t.Fatalf("expected default locale fallback, got %q", got)
	}
}

func TestCatalog_MissingKeyFallsBackToKey(t *testing.T) {
	got := NewCatalog("en").ForLocale("en").T("validation.unknown")
	if got != "validation.unknown" {
		t.Fatalf("expected fallback to key, got %q", got)
	}
}

func TestLoadCatalog_Builtin(t *testing.T) {
	catalog, err := LoadCatalog("", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := catalog.ForLocale("it").T("validation.list_query.raw_operator_forbidden", map[string]interface{}{
		"operator": "$where",
		"param":    "mongoQuery",
	})
	if got != "l'operatore $where non è ammesso in mongoQuery" {
		t.Fatalf("unexpected builtin translation %q", got)
	}
	locales := catalog.Locales()
	if len(locales) != 2 || locales[0] != "en" || locales[1] != "it" {
		t.Fatalf("unexpected builtin locales %v", locales)
	}
}

func TestLoadCatalog_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "validation:\n  list_query:\n    skip_negative: \"skip below zero\"\n"
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	catalog, err := LoadCatalog(dir, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	en := catalog.ForLocale("en")
	if got := en.T("validation.list_query.skip_negative"); got != "skip below zero" {
		t.Fatalf("expected override, got %q", got)
	}
	if got := en.T("validation.list_query.fields_mixed"); got == "validation.list_query.fields_mixed" {
		t.Fatal("expected builtin entries kept next to overrides")
	}
}

func TestLoadCatalog_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("a: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(dir, "en"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadCatalog_MissingDirectory(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "absent"), "en"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
