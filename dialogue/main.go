// Package dialogue drives a chat through language, fitness level and duration
// selection and delivers the generated workout plan.
package dialogue

import (
	"context"
	"errors"
	"fitcoachdev/logger"
	"fitcoachdev/session"
	"fitcoachdev/translator"
	"fitcoachdev/workout"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type EventKind int

const (
	EventCommand EventKind = iota
	EventSelection
	EventText
)

const (
	CommandStart  = "start"
	CommandUpdate = "update"
)

const (
	TokenLanguagePrefix = "language_"
	TokenFitnessPrefix  = "fitness_"
	TokenUpdateLanguage = "update_language"
	TokenUpdateFitness  = "update_fitness"
)

// Event is one inbound interaction for a session.
type Event struct {
	SessionID string
	Kind      EventKind
	Command   string
	Token     string
	Text      string
}

type Option struct {
	Label string
	Token string
}

// Directive is one outbound message. Options, when present, are offered as choices.
type Directive struct {
	SessionID string
	Text      string
	Options   []Option
	HTML      bool
}

type Sender interface {
	Send(ctx context.Context, d Directive) error
}

type Translator interface {
	Translate(ctx context.Context, text string, lang string) (string, error)
	TranslateAll(ctx context.Context, lang string, texts ...string) []string
}

type PlanGenerator interface {
	Generate(ctx context.Context, level workout.FitnessLevel, minutes int) (workout.Plan, error)
}

// PlanRecorder archives delivered plans. Failures never reach the user.
type PlanRecorder interface {
	RecordPlan(ctx context.Context, sessionID string, language string, plan workout.Plan) error
}

type EngineConnectProps struct {
	Logger     *logger.LogMiddleware
	Store      *session.Store
	Generator  PlanGenerator
	Translator Translator
	Sender     Sender
	Recorder   PlanRecorder
}

type Engine struct {
	logger     *logger.LogMiddleware
	store      *session.Store
	generator  PlanGenerator
	translator Translator
	sender     Sender
	recorder   PlanRecorder
}

func NewEngine(args EngineConnectProps) *Engine {
	return &Engine{
		logger:     args.Logger,
		store:      args.Store,
		generator:  args.Generator,
		translator: args.Translator,
		sender:     args.Sender,
		recorder:   args.Recorder,
	}
}

// Handle processes one event. Events for the same session must be delivered one at a
// time and in order; events the current stage does not expect are ignored.
func (e *Engine) Handle(ctx context.Context, ev Event) {
	tracer := otel.Tracer("dialogue/Handle")
	ctx, span := tracer.Start(ctx, "Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("session.id", ev.SessionID),
		attribute.Int("event.kind", int(ev.Kind)),
	)

	switch ev.Kind {
	case EventCommand:
		switch ev.Command {
		case CommandStart:
			e.start(ctx, ev.SessionID)
		case CommandUpdate:
			e.offerUpdate(ctx, ev.SessionID)
		}
	case EventSelection:
		e.handleSelection(ctx, ev.SessionID, ev.Token)
	case EventText:
		e.handleText(ctx, ev.SessionID, ev.Text)
	}
}

func (e *Engine) start(ctx context.Context, id string) {
	s := e.store.Update(id, func(s *session.Session) {
		*s = session.New(id)
	})
	e.logger.Logger(ctx).Info("[Dialogue] Session started", zap.String("session_id", id))
	e.send(ctx, Directive{
		SessionID: id,
		Text:      e.localize(ctx, s.Language, textChooseLanguage),
		Options:   languageOptions(),
	})
}

func (e *Engine) offerUpdate(ctx context.Context, id string) {
	lang := e.store.Get(id).Language
	texts := e.translator.TranslateAll(ctx, lang, textUpdateQuestion, textUpdateLanguage, textUpdateFitness)
	e.send(ctx, Directive{
		SessionID: id,
		Text:      texts[0],
		Options: []Option{
			{Label: texts[1], Token: TokenUpdateLanguage},
			{Label: texts[2], Token: TokenUpdateFitness},
		},
	})
}

func (e *Engine) handleSelection(ctx context.Context, id string, token string) {
	switch {
	case token == TokenUpdateLanguage:
		s := e.store.Update(id, func(s *session.Session) {
			s.Stage = session.StageAwaitingLanguage
		})
		e.send(ctx, Directive{
			SessionID: id,
			Text:      e.localize(ctx, s.Language, textChooseNewLanguage),
			Options:   languageOptions(),
		})

	case token == TokenUpdateFitness:
		s := e.store.Update(id, func(s *session.Session) {
			s.Stage = session.StageAwaitingFitnessLevel
			s.FitnessLevel = workout.LevelUnset
		})
		e.sendFitnessPrompt(ctx, id, s.Language)

	case strings.HasPrefix(token, TokenLanguagePrefix):
		lang, ok := translator.LanguageByName(strings.TrimPrefix(token, TokenLanguagePrefix))
		if !ok {
			return
		}
		accepted := false
		s := e.store.Update(id, func(s *session.Session) {
			if s.Stage != session.StageAwaitingLanguage {
				return
			}
			s.Language = lang.Code
			s.Stage = session.StageAwaitingFitnessLevel
			accepted = true
		})
		if !accepted {
			return
		}
		e.logger.Logger(ctx).Info("[Dialogue] Language selected", zap.String("session_id", id), zap.String("language", s.Language))
		e.sendFitnessPrompt(ctx, id, s.Language)

	case strings.HasPrefix(token, TokenFitnessPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(token, TokenFitnessPrefix))
		level := workout.FitnessLevel(n)
		if err != nil || !level.Valid() {
			return
		}
		accepted := false
		s := e.store.Update(id, func(s *session.Session) {
			if s.Stage != session.StageAwaitingFitnessLevel {
				return
			}
			s.FitnessLevel = level
			s.Stage = session.StageAwaitingDuration
			accepted = true
		})
		if !accepted {
			return
		}
		e.logger.Logger(ctx).Info("[Dialogue] Fitness level selected", zap.String("session_id", id), zap.String("level", level.Label()))
		e.send(ctx, Directive{SessionID: id, Text: e.localize(ctx, s.Language, textDurationQuestion)})
	}
}

type durationOutcome int

const (
	durationIgnored durationOutcome = iota
	durationNotANumber
	durationOutOfRange
	durationAccepted
)

func (e *Engine) handleText(ctx context.Context, id string, text string) {
	minutes, parseErr := strconv.Atoi(strings.TrimSpace(text))

	outcome := durationIgnored
	s := e.store.Update(id, func(s *session.Session) {
		if s.Stage != session.StageAwaitingDuration {
			return
		}
		switch {
		case errors.Is(parseErr, strconv.ErrRange):
			outcome = durationOutOfRange
		case parseErr != nil:
			outcome = durationNotANumber
		case !workout.ValidMinutes(minutes):
			outcome = durationOutOfRange
		default:
			s.Stage = session.StageComplete
			outcome = durationAccepted
		}
	})

	switch outcome {
	case durationNotANumber:
		e.send(ctx, Directive{SessionID: id, Text: e.localize(ctx, s.Language, textInvalidNumber)})
	case durationOutOfRange:
		e.send(ctx, Directive{SessionID: id, Text: e.localize(ctx, s.Language, textOutOfRange)})
	case durationAccepted:
		e.generate(ctx, s, minutes)
	}
}

func (e *Engine) generate(ctx context.Context, s session.Session, minutes int) {
	tracer := otel.Tracer("dialogue/generate")
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()

	log := e.logger.Logger(ctx).With(zap.String("session_id", s.ID), zap.Int("minutes", minutes))

	e.send(ctx, Directive{SessionID: s.ID, Text: e.localize(ctx, s.Language, textGenerating)})

	plan, err := e.generator.Generate(ctx, s.FitnessLevel, minutes)
	if err != nil {
		span.RecordError(err)
		log.Error("[Dialogue] Workout generation failed", zap.Error(err))
		e.store.Update(s.ID, func(s *session.Session) {
			if s.Stage == session.StageComplete {
				s.Stage = session.StageAwaitingDuration
			}
		})
		e.send(ctx, Directive{SessionID: s.ID, Text: e.localize(ctx, s.Language, textGenerationFailed)})
		return
	}

	e.deliverPlan(ctx, s.ID, s.Language, plan)
	log.Info("[Dialogue] Workout delivered", zap.Int("exercises", len(plan.Exercises)))

	if e.recorder != nil {
		if err := e.recorder.RecordPlan(ctx, s.ID, s.Language, plan); err != nil {
			log.Warn("[Dialogue] Could not archive plan", zap.Error(err))
		}
	}
}

// deliverPlan sends one message per exercise in plan order. Only name, description and
// reps are translated; the query and video stay untouched.
func (e *Engine) deliverPlan(ctx context.Context, id string, lang string, plan workout.Plan) {
	texts := append([]string(nil), exerciseLabels...)
	for _, ex := range plan.Exercises {
		ex = withDefaults(ex)
		texts = append(texts, ex.Name, ex.Description, ex.Reps)
	}

	translated := e.translator.TranslateAll(ctx, lang, texts...)
	l := newLabels(translated[:len(exerciseLabels)])
	fields := translated[len(exerciseLabels):]

	for i, ex := range plan.Exercises {
		name, description, reps := fields[3*i], fields[3*i+1], fields[3*i+2]
		e.send(ctx, Directive{
			SessionID: id,
			Text:      formatExercise(name, description, reps, ex.Video, l),
			HTML:      true,
		})
	}
}

func (e *Engine) sendFitnessPrompt(ctx context.Context, id string, lang string) {
	levels := workout.Levels()
	texts := []string{textFitnessQuestion}
	for _, level := range levels {
		texts = append(texts, level.Label())
	}

	translated := e.translator.TranslateAll(ctx, lang, texts...)
	options := make([]Option, 0, len(levels))
	for i, level := range levels {
		options = append(options, Option{
			Label: translated[i+1],
			Token: TokenFitnessPrefix + strconv.Itoa(int(level)),
		})
	}

	e.send(ctx, Directive{SessionID: id, Text: translated[0], Options: options})
}

func languageOptions() []Option {
	langs := translator.Languages()
	options := make([]Option, 0, len(langs))
	for _, l := range langs {
		options = append(options, Option{Label: l.Name, Token: TokenLanguagePrefix + l.Name})
	}
	return options
}

func (e *Engine) localize(ctx context.Context, lang string, text string) string {
	translated, err := e.translator.Translate(ctx, text, lang)
	if err != nil {
		e.logger.Logger(ctx).Debug("[Dialogue] Using untranslated text", zap.Error(err), zap.String("lang", lang))
	}
	return translated
}

func (e *Engine) send(ctx context.Context, d Directive) {
	if err := e.sender.Send(ctx, d); err != nil {
		e.logger.Logger(ctx).Error("[Dialogue] Could not deliver message", zap.Error(err), zap.String("session_id", d.SessionID))
	}
}
