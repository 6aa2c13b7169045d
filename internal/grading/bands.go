// Package grading turns a student's observations into graded competence rows.
package grading

import (
	"errors"
	"fmt"
)

// Grade bounds shared by every scale.
const (
	MinGrade = 1
	MaxGrade = 5
)

// Bands holds the four ascending cut points separating the five grades of a
// ratio scale. A ratio below Bands[0] grades 1 and a ratio at or above
// Bands[3] grades 5.
type Bands [MaxGrade - MinGrade]float64

// DefaultBands is used for both the howMany and howOften scales unless configured.
var DefaultBands = Bands{0.40, 0.60, 0.75, 0.90}

var errInvalidBands = errors.New("invalid bands")

// NewBands validates cut points. An empty slice selects DefaultBands.
func NewBands(cuts []float64) (Bands, error) {
	if len(cuts) == 0 {
		return DefaultBands, nil
	}
	var b Bands
	if len(cuts) != len(b) {
		return Bands{}, fmt.Errorf("%w: need %d cut points, got %d", errInvalidBands, len(b), len(cuts))
	}
	copy(b[:], cuts)
	if err := b.Validate(); err != nil {
		return Bands{}, err
	}
	return b, nil
}

// Validate checks that cut points lie in (0,1] and strictly increase.
func (b Bands) Validate() error {
	prev := 0.0
	for i, cut := range b {
		if cut <= prev || cut > 1 {
			return fmt.Errorf("%w: cut point %d (%v) must be in (%v,1]", errInvalidBands, i, cut, prev)
		}
		prev = cut
	}
	return nil
}

// Grade maps a ratio in [0,1] onto 1..5.
func (b Bands) Grade(ratio float64) int {
	grade := MinGrade
	for _, cut := range b {
		if ratio >= cut {
			grade++
		}
	}
	return grade
}
