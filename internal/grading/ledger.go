package grading

import (
	"fmt"

	"github.com/noah-isme/cbta-eval-api/internal/catalog"
	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// Reference answers whether a competence is known. *catalog.Catalog satisfies it.
type Reference interface {
	Has(models.Competence) bool
}

// Ledger is a read-only view of one student's observations grouped by competence.
type Ledger struct {
	groups map[models.Competence][]models.Observation
}

// GroupByCompetence partitions observations by their own competence field,
// keeping input order within each group. Observations tagged with a
// competence the reference does not know fail the whole grouping.
func GroupByCompetence(ref Reference, observations []models.Observation) (Ledger, error) {
	groups := make(map[models.Competence][]models.Observation)
	for _, obs := range observations {
		if !ref.Has(obs.Competence) {
			return Ledger{}, fmt.Errorf("%w: observation %s tagged %q", catalog.ErrUnknownCompetence, obs.ID, obs.Competence)
		}
		groups[obs.Competence] = append(groups[obs.Competence], obs)
	}
	return Ledger{groups: groups}, nil
}

// Competences lists the non-empty groups in enumeration order.
func (l Ledger) Competences() []models.Competence {
	out := make([]models.Competence, 0, len(l.groups))
	for _, code := range models.Competences() {
		if len(l.groups[code]) > 0 {
			out = append(out, code)
		}
	}
	return out
}

// Observations returns the group for competence, nil when absent.
func (l Ledger) Observations(competence models.Competence) []models.Observation {
	return l.groups[competence]
}

// Len is the number of non-empty groups.
func (l Ledger) Len() int {
	return len(l.groups)
}
