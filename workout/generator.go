package workout

import (
	"context"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	generationTemperature = 0.7
	maxRepairEchoBytes    = 2000
)

// VideoLookup finds a single demonstration video for a query.
// Errors and misses are both treated as NoVideo by the generator.
type VideoLookup interface {
	FindVideo(ctx context.Context, query string) (Video, error)
}

type GeneratorConnectProps struct {
	Logger *logger.LogMiddleware
	Model  modelapi.Completer
	Videos VideoLookup

	GenerationTimeout time.Duration
	LookupTimeout     time.Duration
	LookupConcurrency int
	// RepairAttempts is how many corrective prompts are sent after a contract violation.
	RepairAttempts int
}

type Generator struct {
	logger            *logger.LogMiddleware
	model             modelapi.Completer
	videos            VideoLookup
	generationTimeout time.Duration
	lookupTimeout     time.Duration
	lookupConcurrency int
	repairAttempts    int
}

func NewGenerator(args GeneratorConnectProps) *Generator {
	g := &Generator{
		logger:            args.Logger,
		model:             args.Model,
		videos:            args.Videos,
		generationTimeout: args.GenerationTimeout,
		lookupTimeout:     args.LookupTimeout,
		lookupConcurrency: args.LookupConcurrency,
		repairAttempts:    args.RepairAttempts,
	}
	if g.generationTimeout <= 0 {
		g.generationTimeout = 90 * time.Second
	}
	if g.lookupTimeout <= 0 {
		g.lookupTimeout = 10 * time.Second
	}
	if g.lookupConcurrency <= 0 {
		g.lookupConcurrency = 4
	}
	if g.repairAttempts < 0 {
		g.repairAttempts = 0
	}
	return g
}

// Generate asks the model for a plan, validates it and attaches a video to every exercise.
func (g *Generator) Generate(ctx context.Context, level FitnessLevel, minutes int) (Plan, error) {
	tracer := otel.Tracer("workout/Generate")
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	if !level.Valid() {
		return Plan{}, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if !ValidMinutes(minutes) {
		return Plan{}, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}

	span.SetAttributes(
		attribute.String("fitness_level", level.Label()),
		attribute.Int("minutes", minutes),
	)

	exercises, err := g.requestExercises(ctx, level, minutes)
	if err != nil {
		span.RecordError(err)
		return Plan{}, err
	}

	g.enrich(ctx, exercises)

	span.SetAttributes(attribute.Int("exercises", len(exercises)))
	g.logger.Logger(ctx).Info("[Workout] Plan generated",
		zap.String("fitness_level", level.Label()),
		zap.Int("minutes", minutes),
		zap.Int("exercises", len(exercises)),
	)

	return Plan{FitnessLevel: level, Minutes: minutes, Exercises: exercises}, nil
}

func (g *Generator) requestExercises(ctx context.Context, level FitnessLevel, minutes int) ([]Exercise, error) {
	ctx, cancel := context.WithTimeout(ctx, g.generationTimeout)
	defer cancel()

	base := fmt.Sprintf(modelapi.WORKOUT_PROMPT, minutes, strings.ToLower(level.Label()))
	prompt := base

	var lastErr error
	for attempt := 0; attempt <= g.repairAttempts; attempt++ {
		raw, err := g.model.Complete(ctx, modelapi.CompletionRequest{
			SystemPrompt: modelapi.WORKOUT_INSTRUCTION,
			UserPrompt:   prompt,
			Temperature:  generationTemperature,
			JSON:         true,
			Schema:       ExerciseArraySchema(),
		})
		if err != nil {
			g.logger.Logger(ctx).Error("[Workout] Model call failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}

		exercises, err := ParseExercises(raw)
		if err == nil {
			return exercises, nil
		}

		lastErr = err
		g.logger.Logger(ctx).Warn("[Workout] Model response rejected",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("repairAttempts", g.repairAttempts),
			zap.String("response", raw),
		)
		prompt = repairPrompt(base, raw, err)
	}

	return nil, lastErr
}

func repairPrompt(original, raw string, cause error) string {
	if len(raw) > maxRepairEchoBytes {
		cut := maxRepairEchoBytes
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	reason := strings.TrimPrefix(cause.Error(), ErrContractViolation.Error()+": ")
	return original + "\n" + fmt.Sprintf(modelapi.WORKOUT_REPAIR_PROMPT, reason, raw)
}

// enrich resolves every exercise's video in place. Lookups run concurrently, bounded by
// lookupConcurrency, and a failed lookup only affects its own exercise.
func (g *Generator) enrich(ctx context.Context, exercises []Exercise) {
	tracer := otel.Tracer("workout/enrich")
	ctx, span := tracer.Start(ctx, "enrich")
	defer span.End()

	var group errgroup.Group
	group.SetLimit(g.lookupConcurrency)

	for i := range exercises {
		exercises[i].Video = NoVideo
		query := exercises[i].Query
		if query == "" || g.videos == nil {
			continue
		}

		group.Go(func() error {
			exercises[i].Video = g.lookup(ctx, query)
			return nil
		})
	}
	_ = group.Wait()

	found := 0
	for _, e := range exercises {
		if e.Video.Found() {
			found++
		}
	}
	span.AddEvent("Enrichment finished", trace.WithAttributes(attribute.Int("found", found)))
}

func (g *Generator) lookup(ctx context.Context, query string) Video {
	ctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	video, err := g.videos.FindVideo(ctx, query)
	if err != nil {
		g.logger.Logger(ctx).Warn("[Workout] Video lookup failed", zap.Error(err), zap.String("query", query))
		return NoVideo
	}
	if !video.Found() {
		return NoVideo
	}
	return video
}
