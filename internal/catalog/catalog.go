// Package catalog holds the static competence → observable behavior reference data.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

//go:embed behaviors.yaml
var embeddedBehaviors []byte

// ErrUnknownCompetence is returned for identifiers outside the enumeration.
var ErrUnknownCompetence = errors.New("unknown competence")

// Catalog is an immutable lookup of behaviors per competence. It is safe for
// concurrent reads.
type Catalog struct {
	order []models.Competence
	infos map[models.Competence]models.CompetenceInfo
}

type document struct {
	Competences []struct {
		Code      string                      `yaml:"code"`
		Name      string                      `yaml:"name"`
		Behaviors []models.ObservableBehavior `yaml:"behaviors"`
	} `yaml:"competences"`
}

// Default parses the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(embeddedBehaviors)
}

// Load reads the catalog from path, falling back to the embedded catalog when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document. The document must cover
// exactly the competence enumeration, each with at least one behavior. A
// behavior may omit its code; its observations then carry no OB code.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{infos: make(map[models.Competence]models.CompetenceInfo, len(doc.Competences))}
	for _, entry := range doc.Competences {
		code := models.ParseCompetence(entry.Code)
		if !code.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCompetence, entry.Code)
		}
		if _, dup := c.infos[code]; dup {
			return nil, fmt.Errorf("competence %s listed twice", code)
		}
		if len(entry.Behaviors) == 0 {
			return nil, fmt.Errorf("competence %s has no behaviors", code)
		}

		seenCodes := make(map[string]struct{}, len(entry.Behaviors))
		seenTexts := make(map[string]struct{}, len(entry.Behaviors))
		behaviors := make([]models.ObservableBehavior, 0, len(entry.Behaviors))
		for _, b := range entry.Behaviors {
			b.Code = strings.TrimSpace(b.Code)
			if strings.TrimSpace(b.Text) == "" {
				return nil, fmt.Errorf("competence %s: behavior text is required", code)
			}
			if b.Code != "" {
				if _, dup := seenCodes[b.Code]; dup {
					return nil, fmt.Errorf("competence %s: behavior %s listed twice", code, b.Code)
				}
				seenCodes[b.Code] = struct{}{}
			}
			if _, dup := seenTexts[b.Text]; dup {
				return nil, fmt.Errorf("competence %s: behavior %q listed twice", code, b.Text)
			}
			seenTexts[b.Text] = struct{}{}
			b.Competence = code
			behaviors = append(behaviors, b)
		}

		c.infos[code] = models.CompetenceInfo{Code: code, Name: entry.Name, Behaviors: behaviors}
	}

	for _, code := range models.Competences() {
		if _, ok := c.infos[code]; !ok {
			return nil, fmt.Errorf("competence %s missing from catalog", code)
		}
		c.order = append(c.order, code)
	}

	return c, nil
}

// BehaviorsFor returns the behaviors of competence in checklist order.
func (c *Catalog) BehaviorsFor(competence models.Competence) ([]models.ObservableBehavior, error) {
	info, ok := c.infos[competence]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompetence, competence)
	}
	out := make([]models.ObservableBehavior, len(info.Behaviors))
	copy(out, info.Behaviors)
	return out, nil
}

// Info returns name and behaviors of competence.
func (c *Catalog) Info(competence models.Competence) (models.CompetenceInfo, error) {
	info, ok := c.infos[competence]
	if !ok {
		return models.CompetenceInfo{}, fmt.Errorf("%w: %q", ErrUnknownCompetence, competence)
	}
	behaviors, _ := c.BehaviorsFor(competence)
	info.Behaviors = behaviors
	return info, nil
}

// Has reports whether competence is part of the catalog.
func (c *Catalog) Has(competence models.Competence) bool {
	_, ok := c.infos[competence]
	return ok
}

// Competences lists every competence without behaviors, in catalog order.
func (c *Catalog) Competences() []models.CompetenceInfo {
	out := make([]models.CompetenceInfo, 0, len(c.order))
	for _, code := range c.order {
		info := c.infos[code]
		out = append(out, models.CompetenceInfo{Code: info.Code, Name: info.Name})
	}
	return out
}

// Size returns the total number of behaviors.
func (c *Catalog) Size() int {
	total := 0
	for _, info := range c.infos {
		total += len(info.Behaviors)
	}
	return total
}
