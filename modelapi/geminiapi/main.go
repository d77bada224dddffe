package geminiapi

import (
	"context"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	GEMINI_MODEL_NAME = "gemini-2.5-flash"
)

type GeminiConnectProps struct {
	Logger    *logger.LogMiddleware
	SecretKey string
	Model     string
}

const (
	maxRetries = 3
	baseDelay  = 1 * time.Second
)

type Gemini struct {
	logger *logger.LogMiddleware
	client *genai.Client
	model  string
}

func exponentialBackoff(attempt int) time.Duration {
	return baseDelay * time.Duration(1<<uint(attempt))
}

func Connect(ctx context.Context, args GeminiConnectProps) (*Gemini, error) {
	tracer := otel.Tracer("geminiapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()
	args.Logger.Logger(ctx).Info("[GeminiAPI] Connecting Gemini API client")

	model := args.Model
	if model == "" {
		model = GEMINI_MODEL_NAME
	}
	span.SetAttributes(attribute.String("model", model))

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  args.SecretKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		args.Logger.Logger(ctx).Error("[GeminiAPI] Could not create Gemini client", zap.Error(err))
		return nil, fmt.Errorf("could not create gemini client: %w", err)
	}

	return &Gemini{logger: args.Logger, client: client, model: model}, nil
}

// toGenaiSchema converts a provider neutral schema so Gemini can enforce it server side.
func toGenaiSchema(s *modelapi.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Items:       toGenaiSchema(s.Items),
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func (g *Gemini) Complete(ctx context.Context, req modelapi.CompletionRequest) (string, error) {
	tracer := otel.Tracer("geminiapi/Complete")
	ctx, span := tracer.Start(ctx, "Complete")
	defer span.End()

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := g.generateContentWithRetry(ctx, req.UserPrompt, config)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		span.AddEvent("EmptyResponse")
		return "", modelapi.ErrEmptyResponse
	}

	return text.String(), nil
}

func (g *Gemini) generateContentWithRetry(ctx context.Context, userPrompt string, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	tracer := otel.Tracer("geminiapi/generateContentWithRetry")
	ctx, span := tracer.Start(ctx, "generateContentWithRetry")
	defer span.End()
	g.logger.Logger(ctx).Info("[GeminiAPI] generateContentWithRetry called", zap.Int("prompt.length", len(userPrompt)))

	var resp *genai.GenerateContentResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		span.AddEvent("Attempt", trace.WithAttributes(attribute.Int("attemptNumber", attempt+1)))

		resp, err = g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), config)

		valid := err == nil && resp != nil && len(resp.Candidates) > 0 &&
			resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0
		if valid {
			span.AddEvent("LLM generation successful")
			return resp, nil
		}

		if err != nil {
			span.RecordError(err)
			g.logger.Logger(ctx).Warn("[GeminiAPI] Error generating LLM content, retrying...",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", maxRetries))
		} else {
			g.logger.Logger(ctx).Warn("[GeminiAPI] Received empty or invalid response, retrying...",
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", maxRetries))
			span.AddEvent("EmptyResponse")
		}

		if attempt < maxRetries-1 {
			delay := exponentialBackoff(attempt)
			span.AddEvent("Backoff", trace.WithAttributes(attribute.Int64("delayMs", delay.Milliseconds())))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if err != nil {
		g.logger.Logger(ctx).Error("[GeminiAPI] Final error generating LLM content after retries", zap.Error(err))
		return nil, fmt.Errorf("gemini generation failed after %d attempts: %w", maxRetries, err)
	}
	return nil, modelapi.ErrEmptyResponse
}
