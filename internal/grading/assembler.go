package grading

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/cbta-eval-api/internal/catalog"
	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// Policy selects the configurable parts of grading.
type Policy struct {
	HowManyBands  []float64
	HowOftenBands []float64
	Combiner      string
}

// Engine assembles student reports. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	ref        Reference
	classifier Classifier
	combiner   Combiner
}

// NewEngine validates policy and builds an engine over ref.
func NewEngine(ref Reference, policy Policy) (*Engine, error) {
	if ref == nil {
		return nil, errors.New("grading: reference catalog is required")
	}
	howMany, err := NewBands(policy.HowManyBands)
	if err != nil {
		return nil, fmt.Errorf("howMany bands: %w", err)
	}
	howOften, err := NewBands(policy.HowOftenBands)
	if err != nil {
		return nil, fmt.Errorf("howOften bands: %w", err)
	}
	combiner, err := CombinerByName(policy.Combiner)
	if err != nil {
		return nil, err
	}
	return &Engine{
		ref:        ref,
		classifier: Classifier{HowMany: howMany, HowOften: howOften},
		combiner:   combiner,
	}, nil
}

// CombinerName reports the active combination policy.
func (e *Engine) CombinerName() string {
	return e.combiner.Name()
}

// Assemble builds the report of one student from every observation recorded
// for them. The rating is checked before anything else so an invalid rating
// never yields a partial report.
func (e *Engine) Assemble(observations []models.Observation, rating int) (models.StudentReport, error) {
	if err := ValidateRating(rating); err != nil {
		return models.StudentReport{}, err
	}

	ledger, err := GroupByCompetence(e.ref, observations)
	if err != nil {
		return models.StudentReport{}, err
	}

	report := models.StudentReport{
		Report:                make(map[models.Competence]models.CompetenceReportRow, ledger.Len()),
		UncheckedObservations: []models.UncheckedObservation{},
	}

	for _, competence := range ledger.Competences() {
		group := ledger.Observations(competence)
		howMany, howOften, err := e.classifier.Classify(Count(group))
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return models.StudentReport{}, err
		}
		safety, err := SafetyScore(competence, rating)
		if err != nil {
			return models.StudentReport{}, err
		}
		report.Report[competence] = models.CompetenceReportRow{
			Competence:        competence,
			HowMany:           howMany,
			HowOften:          howOften,
			SafetyScore:       safety,
			FinalGrade:        e.combiner.Combine(howMany, howOften, safety),
			ObservedBehaviors: observedBehaviors(group),
		}
	}

	for _, obs := range observations {
		if obs.IsChecked {
			continue
		}
		report.UncheckedObservations = append(report.UncheckedObservations, models.UncheckedObservation{
			Text:       obs.Text,
			ObCode:     obs.ObCode,
			Competence: obs.Competence,
		})
	}

	return report, nil
}

// AssembleSession builds a report for every student on the roster. Ratings
// for names not on the roster are ignored, students without one get
// defaultRating. Every supplied rating, and the default, are validated
// before any report is built.
func (e *Engine) AssembleSession(graph models.SessionGraph, ratings map[string]int, defaultRating int) (models.SessionReport, error) {
	if err := ValidateRatings(ratings); err != nil {
		return nil, err
	}
	if err := ValidateRating(defaultRating); err != nil {
		return nil, fmt.Errorf("default rating: %w", err)
	}
	if err := validateGraph(e.ref, graph); err != nil {
		return nil, err
	}

	out := make(models.SessionReport, len(graph.Students))
	for _, name := range graph.StudentNames() {
		rating, ok := ratings[name]
		if !ok {
			rating = defaultRating
		}
		report, err := e.Assemble(graph.ObservationsFor(name), rating)
		if err != nil {
			return nil, fmt.Errorf("student %q: %w", name, err)
		}
		out[name] = report
	}
	return out, nil
}

// validateGraph checks that each observation carries a competence of its exercise.
func validateGraph(ref Reference, graph models.SessionGraph) error {
	for _, ex := range graph.Exercises {
		allowed := make(map[models.Competence]struct{}, len(ex.Competences))
		for _, c := range ex.Competences {
			if !ref.Has(c) {
				return fmt.Errorf("%w: exercise %s lists %q", catalog.ErrUnknownCompetence, ex.ID, c)
			}
			allowed[c] = struct{}{}
		}
		if len(allowed) == 0 {
			continue
		}
		for _, obs := range ex.Observations {
			if _, ok := allowed[obs.Competence]; !ok {
				return fmt.Errorf("%w: observation %s tagged %q outside exercise %s", catalog.ErrUnknownCompetence, obs.ID, obs.Competence, ex.ID)
			}
		}
	}
	return nil
}

// observedBehaviors lists checked behaviors once each, in first occurrence order.
func observedBehaviors(group []models.Observation) []models.ObservedBehavior {
	type key struct{ code, text string }
	seen := make(map[key]struct{})
	out := []models.ObservedBehavior{}
	for _, obs := range group {
		if !obs.IsChecked {
			continue
		}
		k := key{text: obs.Text}
		if obs.ObCode != nil {
			k.code = *obs.ObCode
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, models.ObservedBehavior{ObCode: obs.ObCode, Text: obs.Text})
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
