package translator

import (
	"context"
	"errors"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeModel struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
	reply func(req modelapi.CompletionRequest) string
}

func (f *fakeModel) Complete(ctx context.Context, req modelapi.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply(req), nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func upper(req modelapi.CompletionRequest) string {
	return " " + strings.ToUpper(req.UserPrompt) + "\n"
}

func newTranslator(t *testing.T, model modelapi.Completer, timeout time.Duration) *Translator {
	tr, err := Connect(context.Background(), TranslatorConnectProps{
		Logger:  logger.Wrap(zaptest.NewLogger(t)),
		Model:   model,
		Timeout: timeout,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return tr
}

func TestTranslate(t *testing.T) {
	model := &fakeModel{reply: upper}
	tr := newTranslator(t, model, time.Second)

	got, err := tr.Translate(context.Background(), "hello", "es")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "HELLO" {
		t.Errorf("expected trimmed translation, got %q", got)
	}
}

func TestTranslatePromptNamesLanguage(t *testing.T) {
	var system string
	model := &fakeModel{reply: func(req modelapi.CompletionRequest) string {
		system = req.SystemPrompt
		return "ok"
	}}
	tr := newTranslator(t, model, time.Second)

	tr.Translate(context.Background(), "hello", "zh-cn")
	if !strings.Contains(system, "Simplified Chinese") {
		t.Errorf("expected prompt to name the language, got %q", system)
	}
}

func TestTranslateFailsOpen(t *testing.T) {
	model := &fakeModel{err: errors.New("quota exceeded")}
	tr := newTranslator(t, model, time.Second)

	got, err := tr.Translate(context.Background(), "Please enter a valid number.", "de")
	if err == nil {
		t.Error("expected the failure to be reported")
	}
	if got != "Please enter a valid number." {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestTranslateTimeoutFailsOpen(t *testing.T) {
	model := &fakeModel{reply: upper, delay: time.Second}
	tr := newTranslator(t, model, 20*time.Millisecond)

	got, err := tr.Translate(context.Background(), "hello", "fr")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if got != "hello" {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestTranslateSkipsBaseLanguageAndEmptyText(t *testing.T) {
	model := &fakeModel{reply: upper}
	tr := newTranslator(t, model, time.Second)

	if got, _ := tr.Translate(context.Background(), "hello", "en"); got != "hello" {
		t.Errorf("expected passthrough for english, got %q", got)
	}
	if got, _ := tr.Translate(context.Background(), "  ", "es"); got != "  " {
		t.Errorf("expected passthrough for blank text, got %q", got)
	}
	if model.callCount() != 0 {
		t.Errorf("expected no model calls, got %d", model.callCount())
	}
}

func TestTranslateCachesSuccesses(t *testing.T) {
	model := &fakeModel{reply: upper}
	tr := newTranslator(t, model, time.Second)

	for i := 0; i < 3; i++ {
		tr.Translate(context.Background(), "hello", "it")
	}
	if model.callCount() != 1 {
		t.Errorf("expected one model call, got %d", model.callCount())
	}
}

func TestTranslateUnsupportedLanguage(t *testing.T) {
	model := &fakeModel{reply: upper}
	tr := newTranslator(t, model, time.Second)

	got, err := tr.Translate(context.Background(), "hello", "not a locale!")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected unsupported language, got %v", err)
	}
	if got != "hello" {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestTranslateAllKeepsOrder(t *testing.T) {
	model := &fakeModel{reply: upper}
	tr := newTranslator(t, model, time.Second)

	got := tr.TranslateAll(context.Background(), "ru", "a", "b", "", "c")
	want := []string{"A", "B", "", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLanguages(t *testing.T) {
	langs := Languages()
	if len(langs) != 7 || langs[0].Code != "en" || langs[5].Code != "zh-cn" {
		t.Errorf("unexpected catalog %+v", langs)
	}
	if l, ok := LanguageByName("Italian"); !ok || l.Code != "it" {
		t.Errorf("expected Italian to map to it, got %+v", l)
	}
	if _, ok := LanguageByName("Klingon"); ok {
		t.Error("unexpected language match")
	}
}
