// source: query.sql

package postgres

import (
	"context"

	"github.com/google/uuid"
)

const addWorkoutPlan = `-- name: AddWorkoutPlan :exec
INSERT INTO workout_plans (id, session_id, language, fitness_level, minutes, exercises)
VALUES ($1, $2, $3, $4, $5, $6)
`

type AddWorkoutPlanParams struct {
	ID           uuid.UUID
	SessionID    string
	Language     string
	FitnessLevel int32
	Minutes      int32
	Exercises    string
}

func (q *Queries) AddWorkoutPlan(ctx context.Context, arg AddWorkoutPlanParams) error {
	_, err := q.db.ExecContext(ctx, addWorkoutPlan,
		arg.ID,
		arg.SessionID,
		arg.Language,
		arg.FitnessLevel,
		arg.Minutes,
		arg.Exercises,
	)
	return err
}
