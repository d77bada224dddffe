package dialogue

import (
	"context"
	"errors"
	"fitcoachdev/logger"
	"fitcoachdev/session"
	"fitcoachdev/workout"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type recordingSender struct {
	mu         sync.Mutex
	directives []Directive
}

func (r *recordingSender) Send(ctx context.Context, d Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives = append(r.directives, d)
	return nil
}

func (r *recordingSender) take() []Directive {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.directives
	r.directives = nil
	return out
}

// prefixTranslator marks translated text with the target language.
type prefixTranslator struct {
	mu   sync.Mutex
	fail bool
	seen []string
}

func (p *prefixTranslator) Translate(ctx context.Context, text string, lang string) (string, error) {
	p.mu.Lock()
	p.seen = append(p.seen, text)
	fail := p.fail
	p.mu.Unlock()

	if fail {
		return text, errors.New("translation service down")
	}
	if lang == "en" {
		return text, nil
	}
	return "[" + lang + "] " + text, nil
}

func (p *prefixTranslator) TranslateAll(ctx context.Context, lang string, texts ...string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i], _ = p.Translate(ctx, text, lang)
	}
	return out
}

func (p *prefixTranslator) saw(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.seen {
		if s == text {
			return true
		}
	}
	return false
}

type fakeGenerator struct {
	calls   atomic.Int32
	plan    workout.Plan
	err     error
	delay   time.Duration
	level   workout.FitnessLevel
	minutes int
}

func (f *fakeGenerator) Generate(ctx context.Context, level workout.FitnessLevel, minutes int) (workout.Plan, error) {
	f.calls.Add(1)
	f.level, f.minutes = level, minutes
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return workout.Plan{}, f.err
	}
	plan := f.plan
	plan.FitnessLevel, plan.Minutes = level, minutes
	return plan, nil
}

type fakeRecorder struct {
	sessionID string
	language  string
	plan      workout.Plan
}

func (f *fakeRecorder) RecordPlan(ctx context.Context, sessionID string, language string, plan workout.Plan) error {
	f.sessionID, f.language, f.plan = sessionID, language, plan
	return nil
}

func samplePlan() workout.Plan {
	return workout.Plan{Exercises: []workout.Exercise{
		{Name: "Squat", Description: "Sit back & down", Reps: "3x10", Query: "squat form", Video: workout.Video{ID: "a", URL: "https://www.youtube.com/watch?v=a"}},
		{Name: "Plank", Description: "Hold <steady>", Reps: "30s", Query: "plank", Video: workout.Video{ID: "b", URL: "https://www.youtube.com/watch?v=b"}},
		{Name: "Stretch", Description: "Relax", Reps: "2 minutes", Query: "", Video: workout.NoVideo},
	}}
}

type harness struct {
	engine     *Engine
	store      *session.Store
	sender     *recordingSender
	translator *prefixTranslator
	generator  *fakeGenerator
	recorder   *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		store:      session.NewStore(),
		sender:     &recordingSender{},
		translator: &prefixTranslator{},
		generator:  &fakeGenerator{plan: samplePlan()},
		recorder:   &fakeRecorder{},
	}
	h.engine = NewEngine(EngineConnectProps{
		Logger:     logger.Wrap(zaptest.NewLogger(t)),
		Store:      h.store,
		Generator:  h.generator,
		Translator: h.translator,
		Sender:     h.sender,
		Recorder:   h.recorder,
	})
	return h
}

func (h *harness) command(id, name string) {
	h.engine.Handle(context.Background(), Event{SessionID: id, Kind: EventCommand, Command: name})
}

func (h *harness) choose(id, token string) {
	h.engine.Handle(context.Background(), Event{SessionID: id, Kind: EventSelection, Token: token})
}

func (h *harness) text(id, text string) {
	h.engine.Handle(context.Background(), Event{SessionID: id, Kind: EventText, Text: text})
}

// toDuration walks a session to the duration question and drops the prompts sent so far.
func (h *harness) toDuration(id string) {
	h.command(id, CommandStart)
	h.choose(id, "language_Spanish")
	h.choose(id, "fitness_3")
	h.sender.take()
}

func TestFullDialogue(t *testing.T) {
	h := newHarness(t)

	h.command("chat", CommandStart)
	out := h.sender.take()
	if len(out) != 1 || out[0].Text != textChooseLanguage || len(out[0].Options) != 7 {
		t.Fatalf("unexpected language prompt %+v", out)
	}
	if out[0].Options[5].Label != "Chinese" || out[0].Options[5].Token != "language_Chinese" {
		t.Errorf("unexpected language option %+v", out[0].Options[5])
	}

	h.choose("chat", "language_Spanish")
	out = h.sender.take()
	if len(out) != 1 || out[0].Text != "[es] "+textFitnessQuestion {
		t.Fatalf("unexpected fitness prompt %+v", out)
	}
	if len(out[0].Options) != 5 || out[0].Options[0].Token != "fitness_1" || out[0].Options[0].Label != "[es] Unfit and significantly overweight" {
		t.Errorf("unexpected fitness options %+v", out[0].Options)
	}
	if got := h.store.Get("chat"); got.Stage != session.StageAwaitingFitnessLevel || got.Language != "es" {
		t.Errorf("unexpected session %+v", got)
	}

	h.choose("chat", "fitness_3")
	out = h.sender.take()
	if len(out) != 1 || out[0].Text != "[es] "+textDurationQuestion {
		t.Fatalf("unexpected duration prompt %+v", out)
	}

	h.text("chat", " 30 ")
	out = h.sender.take()
	if len(out) != 4 {
		t.Fatalf("expected notice plus 3 exercises, got %d: %+v", len(out), out)
	}
	if out[0].Text != "[es] "+textGenerating {
		t.Errorf("expected generating notice first, got %q", out[0].Text)
	}

	exercises := out[1:]
	for i, name := range []string{"Squat", "Plank", "Stretch"} {
		if !exercises[i].HTML {
			t.Errorf("exercise %d should use HTML", i)
		}
		if !strings.HasPrefix(exercises[i].Text, "<b>[es] "+name+"</b>") {
			t.Errorf("exercise %d out of order or untranslated: %q", i, exercises[i].Text)
		}
	}
	if !strings.Contains(exercises[0].Text, `<a href="https://www.youtube.com/watch?v=a">[es] Video demonstration</a>`) {
		t.Errorf("expected video link, got %q", exercises[0].Text)
	}
	if !strings.Contains(exercises[0].Text, "Sit back &amp; down") {
		t.Errorf("expected escaped description, got %q", exercises[0].Text)
	}
	if !strings.Contains(exercises[1].Text, "Hold &lt;steady&gt;") {
		t.Errorf("expected escaped description, got %q", exercises[1].Text)
	}
	if !strings.Contains(exercises[2].Text, "<i>[es] No video found.</i>") || strings.Contains(exercises[2].Text, "href") {
		t.Errorf("expected no video notice, got %q", exercises[2].Text)
	}

	if h.translator.saw("squat form") || h.translator.saw("https://www.youtube.com/watch?v=a") {
		t.Error("queries and video references must never be translated")
	}
	if h.generator.level != workout.LevelModeratelyFit || h.generator.minutes != 30 {
		t.Errorf("generator got level=%v minutes=%d", h.generator.level, h.generator.minutes)
	}
	if got := h.store.Get("chat"); got.Stage != session.StageComplete {
		t.Errorf("expected complete, got %v", got.Stage)
	}
	if h.recorder.sessionID != "chat" || h.recorder.language != "es" || len(h.recorder.plan.Exercises) != 3 {
		t.Errorf("plan was not archived: %+v", h.recorder)
	}
}

func TestSelectionsOutsideTheirStageAreIgnored(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		token string
	}{
		{"fitness before language", func(h *harness) { h.command("c", CommandStart) }, "fitness_2"},
		{"language while awaiting duration", func(h *harness) { h.toDuration("c") }, "language_French"},
		{"fitness while awaiting duration", func(h *harness) { h.toDuration("c") }, "fitness_5"},
		{"unknown language", func(h *harness) { h.command("c", CommandStart) }, "language_Klingon"},
		{"unknown level", func(h *harness) {
			h.command("c", CommandStart)
			h.choose("c", "language_German")
		}, "fitness_9"},
		{"garbage token", func(h *harness) { h.command("c", CommandStart) }, "whatever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			h.sender.take()
			before := h.store.Get("c")

			h.choose("c", tt.token)

			after := h.store.Get("c")
			if before.Stage != after.Stage || before.Language != after.Language || before.FitnessLevel != after.FitnessLevel {
				t.Errorf("session changed from %+v to %+v", before, after)
			}
			if out := h.sender.take(); len(out) != 0 {
				t.Errorf("expected no output, got %+v", out)
			}
		})
	}
}

func TestDurationParsing(t *testing.T) {
	tests := []struct {
		input    string
		accepted bool
		reply    string
	}{
		{"2", true, ""},
		{"200", true, ""},
		{"1", false, textOutOfRange},
		{"201", false, textOutOfRange},
		{"-5", false, textOutOfRange},
		{"99999999999999999999", false, textOutOfRange},
		{"abc", false, textInvalidNumber},
		{"", false, textInvalidNumber},
		{"12.5", false, textInvalidNumber},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h := newHarness(t)
			h.toDuration("c")

			h.text("c", tt.input)
			got := h.store.Get("c")
			out := h.sender.take()

			if tt.accepted {
				if got.Stage != session.StageComplete {
					t.Errorf("expected complete, got %v", got.Stage)
				}
				if h.generator.minutes != mustAtoi(tt.input) {
					t.Errorf("generator got %d minutes", h.generator.minutes)
				}
				return
			}

			if got.Stage != session.StageAwaitingDuration {
				t.Errorf("expected to stay awaiting duration, got %v", got.Stage)
			}
			if got.FitnessLevel != workout.LevelModeratelyFit || got.Language != "es" {
				t.Errorf("collected answers were lost: %+v", got)
			}
			if len(out) != 1 || out[0].Text != "[es] "+tt.reply {
				t.Errorf("expected %q, got %+v", tt.reply, out)
			}
			if h.generator.calls.Load() != 0 {
				t.Error("generator must not be called for invalid input")
			}
		})
	}
}

func mustAtoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func TestGenerationFailureReturnsToDuration(t *testing.T) {
	h := newHarness(t)
	h.generator.err = workout.ErrContractViolation
	h.toDuration("c")

	h.text("c", "45")

	got := h.store.Get("c")
	if got.Stage != session.StageAwaitingDuration {
		t.Errorf("expected awaiting duration after failure, got %v", got.Stage)
	}
	if got.FitnessLevel != workout.LevelModeratelyFit || got.Language != "es" {
		t.Errorf("collected answers were lost: %+v", got)
	}

	out := h.sender.take()
	last := out[len(out)-1]
	if last.Text != "[es] "+textGenerationFailed {
		t.Errorf("expected generic failure message, got %q", last.Text)
	}
	if strings.Contains(last.Text, "contract") {
		t.Error("internal error detail leaked to the user")
	}
	if h.recorder.sessionID != "" {
		t.Error("failed plans must not be archived")
	}

	h.generator.err = nil
	h.text("c", "45")
	if got := h.store.Get("c"); got.Stage != session.StageComplete {
		t.Errorf("retry should succeed, got %v", got.Stage)
	}
}

func TestTranslatorFailureStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.translator.fail = true

	h.command("c", CommandStart)
	h.choose("c", "language_Russian")
	out := h.sender.take()

	if got := h.store.Get("c"); got.Stage != session.StageAwaitingFitnessLevel || got.Language != "ru" {
		t.Errorf("expected to advance despite translation failure, got %+v", got)
	}
	last := out[len(out)-1]
	if last.Text != textFitnessQuestion {
		t.Errorf("expected untranslated prompt, got %q", last.Text)
	}
	if last.Options[1].Label != "Unfit" {
		t.Errorf("expected untranslated option, got %q", last.Options[1].Label)
	}
}

func TestTextBeforeDurationIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.command("c", CommandStart)
	h.sender.take()

	h.text("c", "30")

	if out := h.sender.take(); len(out) != 0 {
		t.Errorf("expected no output, got %+v", out)
	}
	if got := h.store.Get("c"); got.Stage != session.StageAwaitingLanguage {
		t.Errorf("expected awaiting language, got %v", got.Stage)
	}
}

func TestUpdatePreferences(t *testing.T) {
	h := newHarness(t)
	h.toDuration("c")
	h.text("c", "20")
	h.sender.take()

	h.command("c", CommandUpdate)
	out := h.sender.take()
	if len(out) != 1 || out[0].Text != "[es] "+textUpdateQuestion || len(out[0].Options) != 2 {
		t.Fatalf("unexpected update menu %+v", out)
	}
	if out[0].Options[0].Token != TokenUpdateLanguage || out[0].Options[1].Token != TokenUpdateFitness {
		t.Errorf("unexpected tokens %+v", out[0].Options)
	}
	if got := h.store.Get("c"); got.Stage != session.StageComplete {
		t.Errorf("menu must not change the stage, got %v", got.Stage)
	}

	h.choose("c", TokenUpdateLanguage)
	out = h.sender.take()
	got := h.store.Get("c")
	if got.Stage != session.StageAwaitingLanguage || got.FitnessLevel != workout.LevelModeratelyFit {
		t.Errorf("expected awaiting language with level kept, got %+v", got)
	}
	if len(out) != 1 || out[0].Text != "[es] "+textChooseNewLanguage || len(out[0].Options) != 7 {
		t.Errorf("unexpected language prompt %+v", out)
	}

	h.choose("c", "language_Italian")
	h.sender.take()
	if got := h.store.Get("c"); got.Language != "it" || got.Stage != session.StageAwaitingFitnessLevel {
		t.Errorf("expected normal flow to resume, got %+v", got)
	}

	h.choose("c", "fitness_5")
	h.text("c", "60")
	h.sender.take()

	h.choose("c", TokenUpdateFitness)
	out = h.sender.take()
	got = h.store.Get("c")
	if got.Stage != session.StageAwaitingFitnessLevel || got.Language != "it" {
		t.Errorf("expected awaiting fitness with language kept, got %+v", got)
	}
	if len(out) != 1 || out[0].Text != "[it] "+textFitnessQuestion {
		t.Errorf("unexpected fitness prompt %+v", out)
	}
}

func TestStartResetsSession(t *testing.T) {
	h := newHarness(t)
	h.toDuration("c")

	h.command("c", CommandStart)

	got := h.store.Get("c")
	if got.Stage != session.StageAwaitingLanguage || got.Language != session.DefaultLanguage || got.FitnessLevel != workout.LevelUnset {
		t.Errorf("expected a fresh session, got %+v", got)
	}
}

func TestConcurrentDurationsGenerateOnce(t *testing.T) {
	h := newHarness(t)
	h.generator.delay = 20 * time.Millisecond
	h.toDuration("c")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.text("c", "30")
		}()
	}
	wg.Wait()

	if calls := h.generator.calls.Load(); calls != 1 {
		t.Errorf("expected exactly one generation, got %d", calls)
	}
}
