package models

import "strings"

// Competence identifies one of the fixed competence areas under assessment.
type Competence string

const (
	CompetenceKNO Competence = "KNO"
	CompetencePRO Competence = "PRO"
	CompetenceCOM Competence = "COM"
	CompetenceFPA Competence = "FPA"
	CompetenceFPM Competence = "FPM"
	CompetenceLTW Competence = "LTW"
	CompetencePSD Competence = "PSD"
	CompetenceSAW Competence = "SAW"
	CompetenceWLM Competence = "WLM"
)

var competenceOrder = []Competence{
	CompetenceKNO,
	CompetencePRO,
	CompetenceCOM,
	CompetenceFPA,
	CompetenceFPM,
	CompetenceLTW,
	CompetencePSD,
	CompetenceSAW,
	CompetenceWLM,
}

// Competences returns the enumerated competence set in catalog order.
func Competences() []Competence {
	out := make([]Competence, len(competenceOrder))
	copy(out, competenceOrder)
	return out
}

// Valid reports whether c belongs to the enumeration.
func (c Competence) Valid() bool {
	for _, known := range competenceOrder {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCompetence normalises user input ("pro", " PRO ") into a Competence.
// The result is not guaranteed to be valid.
func ParseCompetence(raw string) Competence {
	return Competence(strings.ToUpper(strings.TrimSpace(raw)))
}

// ObservableBehavior is one checklist item observable under a competence.
type ObservableBehavior struct {
	Code       string     `json:"ob_code,omitempty" yaml:"code"`
	Competence Competence `json:"competence" yaml:"-"`
	Text       string     `json:"text" yaml:"text"`
}

// CompetenceInfo describes a competence together with its behaviors.
type CompetenceInfo struct {
	Code      Competence           `json:"code"`
	Name      string               `json:"name"`
	Behaviors []ObservableBehavior `json:"behaviors,omitempty"`
}
