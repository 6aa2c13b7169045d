package grading

import (
	"errors"
	"fmt"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// ErrOutOfRangeRating is returned for safety ratings outside 1..5. Ratings are never clamped.
var ErrOutOfRangeRating = errors.New("safety rating out of range")

// ValidateRating checks a single safety rating.
func ValidateRating(rating int) error {
	if rating < MinGrade || rating > MaxGrade {
		return fmt.Errorf("%w: %d", ErrOutOfRangeRating, rating)
	}
	return nil
}

// ValidateRatings checks every supplied rating, reporting the first offender by name order.
func ValidateRatings(ratings map[string]int) error {
	for _, name := range sortedKeys(ratings) {
		if err := ValidateRating(ratings[name]); err != nil {
			return fmt.Errorf("student %q: %w", name, err)
		}
	}
	return nil
}

// SafetyScore folds the student's rating into a competence row. The same
// rating applies to every competence of the student.
func SafetyScore(_ models.Competence, rating int) (int, error) {
	if err := ValidateRating(rating); err != nil {
		return 0, err
	}
	return rating, nil
}
