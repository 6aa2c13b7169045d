package handler

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
)

// safetyRatingsSchema accepts an object mapping student names to integers.
// Range checks happen in the service so they surface as OUT_OF_RANGE_RATING.
const safetyRatingsSchema = `{
  "type": "object",
  "additionalProperties": {"type": "integer"}
}`

var ratingsSchema = mustSchema(safetyRatingsSchema)

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return schema
}

// parseSafetyRatings decodes the safety_scores document. An empty value means no ratings.
func parseSafetyRatings(raw string) (map[string]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]int{}, nil
	}
	result, err := ratingsSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "safety_scores must be a JSON object")
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid safety_scores: "+strings.Join(details, "; "))
	}
	ratings := map[string]int{}
	if err := json.Unmarshal([]byte(raw), &ratings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid safety_scores")
	}
	return ratings, nil
}
