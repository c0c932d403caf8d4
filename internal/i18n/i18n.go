package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator renders user-facing messages in one language.
type Translator struct {
	lang   string
	bundle *i18n.Bundle
	loc    *i18n.Localizer
}

var (
	defaultOnce sync.Once
	defaultT    *Translator
)

// New loads the embedded locale files and returns a translator for lang.
// Messages missing in lang fall back to English.
func New(lang string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	return &Translator{
		lang:   tag.String(),
		bundle: bundle,
		loc:    i18n.NewLocalizer(bundle, tag.String(), "en"),
	}, nil
}

// Default returns the shared English translator.
func Default() *Translator {
	defaultOnce.Do(func() {
		t, err := New("en")
		if err != nil {
			panic(fmt.Sprintf("load default locale: %v", err))
		}
		defaultT = t
	})
	return defaultT
}

// Lang returns the translator's language tag.
func (t *Translator) Lang() string {
	if t == nil {
		return Default().lang
	}
	return t.lang
}

// ForLang returns a translator sharing this bundle for another language.
func (t *Translator) ForLang(lang string) *Translator {
	if t == nil {
		t = Default()
	}
	return &Translator{
		lang:   lang,
		bundle: t.bundle,
		loc:    i18n.NewLocalizer(t.bundle, lang, "en"),
	}
}

// T translates a message by ID.
func (t *Translator) T(msgID string) string {
	return t.localize(&i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func (t *Translator) Td(msgID string, data map[string]any) string {
	return t.localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func (t *Translator) Tp(msgID string, count int) string {
	return t.localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

func (t *Translator) localize(cfg *i18n.LocalizeConfig) string {
	if t == nil {
		t = Default()
	}
	s, err := t.loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "lang", t.lang, "error", err)
		return cfg.MessageID
	}
	return s
}

type ctxKey struct{}

// WithTranslator stores a translator in the context.
func WithTranslator(ctx context.Context, t *Translator) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the context translator or the default one.
func FromContext(ctx context.Context) *Translator {
	if t, ok := ctx.Value(ctxKey{}).(*Translator); ok {
		return t
	}
	return Default()
}
