package grading

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// CombinerMinSafetyOverride names the default combination policy.
const CombinerMinSafetyOverride = "min-safety-override"

// ErrUnknownCombiner is returned when no policy is registered under a name.
var ErrUnknownCombiner = errors.New("unknown combiner")

// Combiner merges the three grades of a row into the final grade.
type Combiner interface {
	Name() string
	Combine(howMany, howOften, safety int) int
}

// MinWithSafetyOverride takes the lower of howMany and howOften, then lets a
// lower safety grade override it.
type MinWithSafetyOverride struct{}

// Name implements Combiner.
func (MinWithSafetyOverride) Name() string { return CombinerMinSafetyOverride }

// Combine implements Combiner.
func (MinWithSafetyOverride) Combine(howMany, howOften, safety int) int {
	final := howMany
	if howOften < final {
		final = howOften
	}
	if safety < final {
		final = safety
	}
	return final
}

var (
	combinersMu sync.RWMutex
	combiners   = map[string]Combiner{
		CombinerMinSafetyOverride: MinWithSafetyOverride{},
	}
)

// RegisterCombiner makes a policy selectable by name, replacing any existing one.
func RegisterCombiner(c Combiner) {
	combinersMu.Lock()
	defer combinersMu.Unlock()
	combiners[c.Name()] = c
}

// CombinerByName resolves a registered policy. An empty name selects the default.
func CombinerByName(name string) (Combiner, error) {
	if name == "" {
		name = CombinerMinSafetyOverride
	}
	combinersMu.RLock()
	defer combinersMu.RUnlock()
	c, ok := combiners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCombiner, name)
	}
	return c, nil
}

// Combiners lists registered policy names.
func Combiners() []string {
	combinersMu.RLock()
	defer combinersMu.RUnlock()
	names := make([]string, 0, len(combiners))
	for name := range combiners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
