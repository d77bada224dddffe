// Package workout generates validated, video-enriched workout plans.
package workout

import (
	"errors"
	"strconv"
)

var (
	ErrInvalidLevel    = errors.New("invalid fitness level")
	ErrInvalidDuration = errors.New("invalid workout duration")
	// ErrGeneration covers provider failures and timeouts.
	ErrGeneration = errors.New("workout generation failed")
	// ErrContractViolation means the model answered with something other than the exercise array.
	ErrContractViolation = errors.New("model response violates the workout contract")
)

const (
	MinMinutes = 2
	MaxMinutes = 200
)

// FitnessLevel is ordered from least to most fit. The zero value means unset.
type FitnessLevel int

const (
	LevelUnset FitnessLevel = iota
	LevelUnfitOverweight
	LevelUnfit
	LevelModeratelyFit
	LevelFit
	LevelVeryFit
)

var levelLabels = map[FitnessLevel]string{
	LevelUnfitOverweight: "Unfit and significantly overweight",
	LevelUnfit:           "Unfit",
	LevelModeratelyFit:   "Moderately fit",
	LevelFit:             "Fit",
	LevelVeryFit:         "Very fit",
}

// Levels lists every selectable level in presentation order.
func Levels() []FitnessLevel {
	return []FitnessLevel{LevelUnfitOverweight, LevelUnfit, LevelModeratelyFit, LevelFit, LevelVeryFit}
}

func (l FitnessLevel) Valid() bool {
	_, ok := levelLabels[l]
	return ok
}

func (l FitnessLevel) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return ""
}

func (l FitnessLevel) String() string {
	if l.Valid() {
		return l.Label()
	}
	return "FitnessLevel(" + strconv.Itoa(int(l)) + ")"
}

// ValidMinutes reports whether minutes is inside the inclusive [MinMinutes, MaxMinutes] range.
func ValidMinutes(minutes int) bool {
	return minutes >= MinMinutes && minutes <= MaxMinutes
}

type Video struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// NoVideo marks an exercise whose demonstration lookup found nothing or failed.
var NoVideo = Video{}

func (v Video) Found() bool {
	return v.URL != ""
}

type Exercise struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Reps        string `json:"reps"`
	Query       string `json:"query"`
	Video       Video  `json:"video"`
}

type Plan struct {
	FitnessLevel FitnessLevel `json:"fitness_level"`
	Minutes      int          `json:"minutes"`
	Exercises    []Exercise   `json:"exercises"`
}
