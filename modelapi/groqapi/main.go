package groqapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fitcoachdev/httpmiddleware"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	ASSISTANT = "assistant"
	SYSTEM    = "system"
	USER      = "user"
)

const (
	GROQ_URL      = "https://api.groq.com/openai/v1/chat/completions"
	DEFAULT_MODEL = "moonshotai/kimi-k2-instruct"
)

type ChatCompletionInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequestInput struct {
	Model       string                       `json:"model"`
	Messages    []ChatCompletionInputMessage `json:"messages"`
	MaxTokens   int                          `json:"max_tokens"`
	Temperature *float64                     `json:"temperature,omitempty"`
}

type GroqResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GroqConnectProps struct {
	Logger    *logger.LogMiddleware
	SecretKey string
	Model     string
	// URL overrides the chat completions endpoint.
	URL string
	// BaseDelay is the first retry delay; it doubles on every retry.
	BaseDelay time.Duration
}

type Groq struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
	apiKey    string
	model     string
	url       string
	baseDelay time.Duration
}

func Connect(ctx context.Context, args GroqConnectProps) *Groq {
	tracer := otel.Tracer("groqapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	model := args.Model
	if model == "" {
		model = DEFAULT_MODEL
	}
	url := args.URL
	if url == "" {
		url = GROQ_URL
	}
	baseDelay := args.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers), attribute.String("model", model))

	return &Groq{logger: args.Logger, semaphore: sem, apiKey: args.SecretKey, model: model, url: url, baseDelay: baseDelay}
}

type MakeAPIRequestProps struct {
	Retries      int
	RequestInput ChatRequestInput
}

// Used for retry logic.
func (o *Groq) exponentialDelay(retryNumber int) time.Duration {
	return time.Duration(float64(o.baseDelay) * math.Pow(2, float64(retryNumber)))
}

func (o *Groq) MakeAPIRequest(ctx context.Context, args MakeAPIRequestProps) (*GroqResponse, error) {
	tracer := otel.Tracer("groqapi/MakeAPIRequest")
	ctx, span := tracer.Start(ctx, "MakeAPIRequest")
	defer span.End()

	span.SetAttributes(
		attribute.String("api.url", o.url),
		attribute.Int("request.max_tokens", args.RequestInput.MaxTokens),
		attribute.String("request.model", args.RequestInput.Model),
		attribute.Int("retries", args.Retries),
	)

	jsonData, err := json.Marshal(args.RequestInput)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not generate request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < args.Retries; attempt++ {
		if attempt > 0 {
			sleepTime := o.exponentialDelay(attempt - 1)
			span.AddEvent("Backoff")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepTime):
			}
		}

		resp, err := o.send(ctx, jsonData)
		if err == nil {
			span.AddEvent("Request successful")
			return resp, nil
		}
		lastErr = err
		span.RecordError(err)

		var statusErr *httpmiddleware.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			o.logger.Logger(ctx).Error("[Groq-API] Request rejected, not retrying", zap.Error(err))
			return nil, err
		}

		o.logger.Logger(ctx).Warn(
			"[Groq-API] Could not complete request to Groq. Retrying after sleeping.",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("retries", args.Retries),
		)
	}

	span.AddEvent("All retries exhausted")
	return nil, fmt.Errorf("groq requests failed: %w", lastErr)
}

func (o *Groq) send(ctx context.Context, body []byte) (*GroqResponse, error) {
	if err := o.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer o.semaphore.Release(1)

	respBody, err := httpmiddleware.HttpRequest(httpmiddleware.HttpRequestStruct{
		Ctx:    ctx,
		Method: "POST",
		Url:    o.url,
		Body:   bytes.NewBuffer(body),
		Headers: map[string]string{
			"authorization": "Bearer " + o.apiKey,
			"content-type":  "application/json",
		},
	})
	if err != nil {
		return nil, err
	}

	var messageResponse GroqResponse
	if err := json.Unmarshal(respBody, &messageResponse); err != nil {
		return nil, fmt.Errorf("could not parse groq response: %w", err)
	}
	if len(messageResponse.Choices) == 0 {
		return nil, fmt.Errorf("groq response had no choices")
	}
	return &messageResponse, nil
}

func (o *Groq) Complete(ctx context.Context, req modelapi.CompletionRequest) (string, error) {
	tracer := otel.Tracer("groqapi/Complete")
	ctx, span := tracer.Start(ctx, "Complete")
	defer span.End()

	messages := []ChatCompletionInputMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, ChatCompletionInputMessage{Role: SYSTEM, Content: req.SystemPrompt})
	}
	messages = append(messages, ChatCompletionInputMessage{Role: USER, Content: req.UserPrompt})

	temperature := req.Temperature
	resp, err := o.MakeAPIRequest(ctx, MakeAPIRequestProps{
		Retries: 3,
		RequestInput: ChatRequestInput{
			Model:       o.model,
			MaxTokens:   4096,
			Messages:    messages,
			Temperature: &temperature,
		},
	})
	if err != nil {
		return "", err
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", modelapi.ErrEmptyResponse
	}
	return content, nil
}
