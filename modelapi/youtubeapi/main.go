package youtubeapi

import (
	"context"
	"errors"
	"fitcoachdev/logger"
	"fitcoachdev/workout"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const WATCH_URL = "https://www.youtube.com/watch?v="

var ErrNoResults = errors.New("no video found for query")

type YouTubeConnectProps struct {
	Logger *logger.LogMiddleware
	APIKey string
	// Endpoint overrides the API base path.
	Endpoint string
}

type YouTube struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
	service   *youtube.Service
}

func Connect(ctx context.Context, args YouTubeConnectProps) (*YouTube, error) {
	tracer := otel.Tracer("youtubeapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))
	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers))

	opts := []option.ClientOption{option.WithAPIKey(args.APIKey)}
	if args.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(args.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not create youtube service: %w", err)
	}

	args.Logger.Logger(ctx).Info("[YouTubeAPI] Client ready")

	return &YouTube{logger: args.Logger, semaphore: sem, service: service}, nil
}

// FindVideo returns the best matching video for query, or ErrNoResults.
func (y *YouTube) FindVideo(ctx context.Context, query string) (workout.Video, error) {
	tracer := otel.Tracer("youtubeapi/FindVideo")
	ctx, span := tracer.Start(ctx, "FindVideo")
	defer span.End()

	query = strings.TrimSpace(query)
	span.SetAttributes(attribute.String("query", query))
	if query == "" {
		return workout.NoVideo, ErrNoResults
	}

	if err := y.semaphore.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return workout.NoVideo, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer y.semaphore.Release(1)

	resp, err := y.service.Search.List([]string{"snippet"}).
		Q(query).
		MaxResults(1).
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		y.logger.Logger(ctx).Error("[YouTubeAPI] Search failed", zap.Error(err), zap.String("query", query))
		return workout.NoVideo, fmt.Errorf("youtube search failed: %w", err)
	}

	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		video := workout.Video{ID: item.Id.VideoId, URL: WATCH_URL + item.Id.VideoId}
		if item.Snippet != nil {
			video.Title = item.Snippet.Title
		}
		span.AddEvent("Video found")
		return video, nil
	}

	span.AddEvent("No results")
	return workout.NoVideo, ErrNoResults
}
