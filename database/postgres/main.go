package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fitcoachdev/config"
	"fitcoachdev/logger"
	"fitcoachdev/workout"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

type DatabaseConnectProps struct {
	Logger   *logger.LogMiddleware
	Config   config.PostgresConfig
	Retries  int
	Interval time.Duration
}

// Database archives delivered workout plans. It never holds dialogue state.
type Database struct {
	Queries
	conn   *sql.DB
	logger *logger.LogMiddleware
}

func Connect(ctx context.Context, args DatabaseConnectProps) (*Database, error) {
	tracer := otel.Tracer("postgres/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	connectRetries := args.Retries
	if connectRetries <= 0 {
		connectRetries = 5
	}
	sleepTime := args.Interval
	if sleepTime <= 0 {
		sleepTime = 5 * time.Second
	}

	var conn *sql.DB
	var err error

	logger := args.Logger.Logger(ctx)

	for connectRetries > 0 {
		conn, err = getConnection(ctx, args.Config)
		if err == nil {
			logger.Info("[Postgres] Database client started")
			break
		}
		connectRetries -= 1
		logger.Error(
			"[Postgres] Could not connect to Postgres. Retrying after sleeping.",
			zap.Error(err),
			zap.Int("Retries Left", connectRetries),
			zap.Duration("Sleep Time", sleepTime),
			zap.String("Host", args.Config.Host))
		if connectRetries == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepTime):
		}
	}

	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		span.RecordError(err)
		conn.Close()
		return nil, fmt.Errorf("could not apply schema: %w", err)
	}

	return &Database{Queries: *New(conn), conn: conn, logger: args.Logger}, nil
}

func getConnection(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	tracer := otel.Tracer("postgres/getConnection")
	ctx, span := tracer.Start(ctx, "getConnection")
	defer span.End()

	sslMode := "disable"

	postgresqlDbInfo := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode,
	)

	db, err := sql.Open("postgres", postgresqlDbInfo)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		span.RecordError(err)
		db.Close()
		return nil, err
	}

	return db, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.conn.Close()
}

// RecordPlan stores a delivered plan with its exercises as JSON.
func (d *Database) RecordPlan(ctx context.Context, sessionID string, language string, plan workout.Plan) error {
	tracer := otel.Tracer("postgres/RecordPlan")
	ctx, span := tracer.Start(ctx, "RecordPlan")
	defer span.End()

	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("exercises", len(plan.Exercises)),
	)

	exercises, err := json.Marshal(plan.Exercises)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("could not encode exercises: %w", err)
	}

	id := uuid.New()
	err = d.Queries.AddWorkoutPlan(ctx, AddWorkoutPlanParams{
		ID:           id,
		SessionID:    sessionID,
		Language:     language,
		FitnessLevel: int32(plan.FitnessLevel),
		Minutes:      int32(plan.Minutes),
		Exercises:    string(exercises),
	})
	if err != nil {
		d.logger.Logger(ctx).Error(
			"[Postgres] Could not record workout plan",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		span.RecordError(err)
		return fmt.Errorf("could not record workout plan: %w", err)
	}

	d.logger.Logger(ctx).Info("[Postgres] Workout plan recorded", zap.String("plan_id", id.String()))
	return nil
}
