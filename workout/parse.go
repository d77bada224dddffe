package workout

import (
	"bytes"
	"encoding/json"
	"fitcoachdev/modelapi"
	"fmt"
	"strconv"
	"strings"
)

// flexString accepts a JSON string or number; models often answer "reps": 12.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type exerciseSchema struct {
	Name        flexString `json:"name"`
	Description flexString `json:"description"`
	Reps        flexString `json:"reps"`
	Query       flexString `json:"query"`
}

// ExerciseArraySchema describes the exercise contract for providers with structured output.
func ExerciseArraySchema() *modelapi.Schema {
	return &modelapi.Schema{
		Type: modelapi.TypeArray,
		Items: &modelapi.Schema{
			Type: modelapi.TypeObject,
			Properties: map[string]*modelapi.Schema{
				"name":        {Type: modelapi.TypeString, Description: "Exercise name"},
				"description": {Type: modelapi.TypeString, Description: "Exercise description"},
				"reps":        {Type: modelapi.TypeString, Description: "Number of reps (or duration)"},
				"query":       {Type: modelapi.TypeString, Description: "A short query to find a relevant YouTube video"},
			},
			Required: []string{"name", "description", "reps", "query"},
		},
	}
}

// stripCodeFence removes a surrounding Markdown fence such as ```json ... ```.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseExercises validates raw model output against the exercise array contract.
// Returned exercises have no video yet.
func ParseExercises(raw string) ([]Exercise, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrContractViolation)
	}
	if body[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrContractViolation)
	}

	var items []exerciseSchema
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no exercises", ErrContractViolation)
	}

	exercises := make([]Exercise, 0, len(items))
	for i, item := range items {
		name := strings.TrimSpace(string(item.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: exercise %d has no name", ErrContractViolation, i)
		}
		exercises = append(exercises, Exercise{
			Name:        name,
			Description: strings.TrimSpace(string(item.Description)),
			Reps:        strings.TrimSpace(string(item.Reps)),
			Query:       strings.TrimSpace(string(item.Query)),
		})
	}
	return exercises, nil
}
