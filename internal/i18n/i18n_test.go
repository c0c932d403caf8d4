package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTranslator(t *testing.T, lang string) *Translator {
	t.Helper()
	tr, err := New(lang)
	if err != nil {
		t.Fatalf("New(%q): %v", lang, err)
	}
	return tr
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "AppTitle", "Quiz"},
		{"en", "QuizUnavailable", "Quiz is currently unavailable."},
		{"ru", "AppTitle", "Викторина"},
		{"ru", "QuizUnavailable", "Викторина сейчас недоступна."},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			if got := newTranslator(t, tt.lang).T(tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	en := newTranslator(t, "en")
	if got := en.Tp("QuestionsAvailable", 1); got != "1 question available." {
		t.Errorf("Tp(QuestionsAvailable, 1) = %q", got)
	}
	if got := en.Tp("QuestionsAvailable", 5); got != "5 questions available." {
		t.Errorf("Tp(QuestionsAvailable, 5) = %q", got)
	}

	ru := newTranslator(t, "ru")
	if got := ru.Tp("QuestionsAvailable", 5); got != "Доступно 5 вопросов." {
		t.Errorf("ru Tp(QuestionsAvailable, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	got := newTranslator(t, "en").Td("PasswordTooShort", map[string]any{"Min": 8})
	if got != "Password must be at least 8 characters long." {
		t.Errorf("Td(PasswordTooShort) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	if got := newTranslator(t, "en").T("NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the ID", got)
	}
}

func TestNilTranslatorUsesDefault(t *testing.T) {
	var tr *Translator
	if got := tr.T("AppTitle"); got != "Quiz" {
		t.Errorf("nil T(AppTitle) = %q", got)
	}
	if got := FromContext(context.Background()).Lang(); got != "en" {
		t.Errorf("default lang = %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		accept, want string
	}{
		{"", "Quiz"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "Викторина"},
		{"de", "Quiz"},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			var got string
			h := Middleware(Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context()).T("AppTitle")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("AppTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
