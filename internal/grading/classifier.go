package grading

import (
	"errors"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// ErrInsufficientData marks a competence without observations. Callers omit its row.
var ErrInsufficientData = errors.New("insufficient data")

// Tally summarises one competence group.
type Tally struct {
	Checked int
	Total   int
	// ExercisesWithChecked counts distinct exercises with at least one checked observation.
	ExercisesWithChecked int
	// Exercises counts distinct exercises contributing observations to the group.
	Exercises int
}

// Count builds the tally of a competence group.
func Count(group []models.Observation) Tally {
	var t Tally
	exercises := make(map[string]bool)
	for _, obs := range group {
		t.Total++
		checked := exercises[obs.ExerciseID]
		if obs.IsChecked {
			t.Checked++
			checked = true
		}
		exercises[obs.ExerciseID] = checked
	}
	t.Exercises = len(exercises)
	for _, checked := range exercises {
		if checked {
			t.ExercisesWithChecked++
		}
	}
	return t
}

// Classifier grades tallies on the howMany and howOften scales.
type Classifier struct {
	HowMany  Bands
	HowOften Bands
}

// Classify returns (howMany, howOften).
func (c Classifier) Classify(t Tally) (int, int, error) {
	if t.Total == 0 || t.Exercises == 0 {
		return 0, 0, ErrInsufficientData
	}
	howMany := c.HowMany.Grade(float64(t.Checked) / float64(t.Total))
	howOften := c.HowOften.Grade(float64(t.ExercisesWithChecked) / float64(t.Exercises))
	return howMany, howOften, nil
}
