package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateStructured checks that text is strict JSON conforming to schema and
// returns the normalized document. Models occasionally wrap JSON in markdown
// fences even when asked for a JSON object, so fences are stripped before
// parsing. Any failure is KindInvalid and never retried.
func validateStructured(text, schema string) (string, error) {
	cleaned := stripFences(text)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return "", NewModelError(KindInvalid, "completion is not valid JSON", err)
	}

	if schema == "" {
		return cleaned, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(cleaned),
	)
	if err != nil {
		return "", NewModelError(KindInvalid, "schema validation failed", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return "", NewModelError(KindInvalid,
			fmt.Sprintf("completion does not match schema: %s", strings.Join(details, "; ")), nil)
	}
	return cleaned, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag on the opening fence line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
