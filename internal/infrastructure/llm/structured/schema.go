package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/readwise/internal/core/domain"
)

// Keys are optional; only their types are enforced.
const analysisSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}},
    "questions": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledAnalysisSchema = jsonschema.MustCompileString("analysis.json", analysisSchema)

// parseAnalysis pulls the first JSON object out of a model reply and checks
// it against the analysis schema.
func parseAnalysis(raw string) (domain.Analysis, error) {
	body := extractJSONObject(raw)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", errMalformedReply, err)
	}
	if err := compiledAnalysisSchema.Validate(doc); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", errMalformedReply, err)
	}

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(body), &analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", errMalformedReply, err)
	}
	analysis.Summary = strings.TrimSpace(analysis.Summary)
	return analysis.Normalize(), nil
}

func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
