package openaiapi

import (
	"context"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const DEFAULT_MODEL = "gpt-4o"

type OpenAI struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
	client    *openai.Client
	model     string
}

type OpenAIConnectProps struct {
	Logger    *logger.LogMiddleware
	SecretKey string
	Model     string
	// BaseURL points the client at any OpenAI-compatible endpoint.
	BaseURL string
}

func Connect(ctx context.Context, args OpenAIConnectProps) *OpenAI {
	tracer := otel.Tracer("openaiapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	model := args.Model
	if model == "" {
		model = DEFAULT_MODEL
	}

	opts := []option.RequestOption{option.WithAPIKey(args.SecretKey)}
	if args.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(args.BaseURL))
	}

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers), attribute.String("model", model))
	client := openai.NewClient(opts...)

	args.Logger.Logger(ctx).Info("[OpenAIAPI] Client ready", zap.String("model", model))

	return &OpenAI{logger: args.Logger, semaphore: sem, client: &client, model: model}
}

func (o *OpenAI) Complete(ctx context.Context, req modelapi.CompletionRequest) (string, error) {
	tracer := otel.Tracer("openaiapi/Complete")
	ctx, span := tracer.Start(ctx, "Complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("model", o.model),
		attribute.Int("prompt.length", len(req.UserPrompt)),
	)

	if err := o.semaphore.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer o.semaphore.Release(1)

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		span.RecordError(err)
		o.logger.Logger(ctx).Error("[OpenAIAPI] Chat completion failed", zap.Error(err))
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		span.AddEvent("EmptyResponse")
		return "", modelapi.ErrEmptyResponse
	}

	span.AddEvent("Completion successful")
	return resp.Choices[0].Message.Content, nil
}
