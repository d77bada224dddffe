// Package translator localizes user-facing prose through a text generation model.
//
// Translation is best effort: Translate always returns usable text, falling back to
// the input when anything goes wrong, and reports the failure as an error that callers
// are free to log and otherwise ignore.
package translator

import (
	"context"
	"errors"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	BaseLanguage = "en"

	translationTemperature = 0.2
	defaultCacheSize       = 2048
	maxParallel            = 8
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

type Language struct {
	Name string
	Code string
	tag  language.Tag
}

var languages = []Language{
	{Name: "English", Code: "en", tag: language.English},
	{Name: "Spanish", Code: "es", tag: language.Spanish},
	{Name: "French", Code: "fr", tag: language.French},
	{Name: "German", Code: "de", tag: language.German},
	{Name: "Russian", Code: "ru", tag: language.Russian},
	{Name: "Chinese", Code: "zh-cn", tag: language.SimplifiedChinese},
	{Name: "Italian", Code: "it", tag: language.Italian},
}

// Languages returns the selectable languages in presentation order.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

func LanguageByName(name string) (Language, bool) {
	for _, l := range languages {
		if l.Name == name {
			return l, true
		}
	}
	return Language{}, false
}

// DisplayName is the English name of a locale code, as used in translation prompts.
func DisplayName(code string) (string, error) {
	for _, l := range languages {
		if strings.EqualFold(l.Code, code) {
			return display.English.Tags().Name(l.tag), nil
		}
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return display.English.Tags().Name(tag), nil
}

type cacheKey struct {
	lang string
	text string
}

type TranslatorConnectProps struct {
	Logger    *logger.LogMiddleware
	Model     modelapi.Completer
	Timeout   time.Duration
	CacheSize int
}

type Translator struct {
	logger  *logger.LogMiddleware
	model   modelapi.Completer
	timeout time.Duration
	cache   *lru.Cache[cacheKey, string]
}

func Connect(ctx context.Context, args TranslatorConnectProps) (*Translator, error) {
	size := args.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("could not create translation cache: %w", err)
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	args.Logger.Logger(ctx).Info("[Translator] Ready", zap.Int("cacheSize", size), zap.Duration("timeout", timeout))

	return &Translator{logger: args.Logger, model: args.Model, timeout: timeout, cache: cache}, nil
}

// Translate returns text in the target language. On failure it returns text unchanged
// together with the reason.
func (t *Translator) Translate(ctx context.Context, text string, lang string) (string, error) {
	if strings.TrimSpace(text) == "" || lang == "" || strings.EqualFold(lang, BaseLanguage) {
		return text, nil
	}

	key := cacheKey{lang: strings.ToLower(lang), text: text}
	if cached, ok := t.cache.Get(key); ok {
		return cached, nil
	}

	tracer := otel.Tracer("translator/Translate")
	ctx, span := tracer.Start(ctx, "Translate")
	defer span.End()

	span.SetAttributes(attribute.String("lang", lang), attribute.Int("text.length", len(text)))

	name, err := DisplayName(lang)
	if err != nil {
		span.RecordError(err)
		return text, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	translated, err := t.model.Complete(ctx, modelapi.CompletionRequest{
		SystemPrompt: fmt.Sprintf(modelapi.TRANSLATION_INSTRUCTION, name, name),
		UserPrompt:   text,
		Temperature:  translationTemperature,
	})
	if err != nil {
		span.RecordError(err)
		t.logger.Logger(ctx).Warn("[Translator] Translation failed, using original text", zap.Error(err), zap.String("lang", lang))
		return text, fmt.Errorf("translate to %s: %w", lang, err)
	}

	translated = strings.TrimSpace(translated)
	if translated == "" {
		return text, fmt.Errorf("translate to %s: %w", lang, modelapi.ErrEmptyResponse)
	}

	t.cache.Add(key, translated)
	return translated, nil
}

// TranslateAll translates texts concurrently and returns them in the same order.
// Failed entries keep their original text.
func (t *Translator) TranslateAll(ctx context.Context, lang string, texts ...string) []string {
	out := make([]string, len(texts))
	copy(out, texts)
	if strings.EqualFold(lang, BaseLanguage) || len(texts) == 0 {
		return out
	}

	var group errgroup.Group
	group.SetLimit(maxParallel)
	for i, text := range texts {
		group.Go(func() error {
			translated, _ := t.Translate(ctx, text, lang)
			out[i] = translated
			return nil
		})
	}
	_ = group.Wait()
	return out
}
