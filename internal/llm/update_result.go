package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// UpdateResult is the structured output of the case-update tier: a
// neutral wire-style bulletin, a narrative with headline/body, and a
// newsworthiness classification.
type UpdateResult struct {
	Parsed        bool
	APSummary     string
	Narrative     Narrative
	IsStoryworthy bool
}

type updatePayload struct {
	APSummary         string `json:"ap_summary"`
	NarrativeHeadline string `json:"narrative_headline"`
	NarrativeBody     string `json:"narrative_body"`
	IsStoryworthy     bool   `json:"is_storyworthy"`
}

// BuildUpdateJSONSchema returns the schema (draft 2020-12 subset) the
// case-update tier's model output must match.
func BuildUpdateJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"ap_summary":         map[string]any{"type": "string", "minLength": 1},
			"narrative_headline": map[string]any{"type": "string", "minLength": 1},
			"narrative_body":     map[string]any{"type": "string", "minLength": 1},
			"is_storyworthy":     map[string]any{"type": "boolean"},
		},
		"required": []string{"ap_summary", "narrative_headline", "narrative_body", "is_storyworthy"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ParseUpdateResult interprets the case-update tier's raw model output.
// Valid structured JSON yields a Parsed result; anything else degrades
// to wrapping the raw output as the narrative body, flagged
// non-storyworthy pending human review. It never fails.
func ParseUpdateResult(raw string) UpdateResult {
	content := stripCodeFence(strings.TrimSpace(raw))

	if err := ValidateJSONAgainstSchema(BuildUpdateJSONSchema(), []byte(content)); err == nil {
		var p updatePayload
		if err := json.Unmarshal([]byte(content), &p); err == nil {
			return UpdateResult{
				Parsed:    true,
				APSummary: p.APSummary,
				Narrative: Narrative{
					Parsed:   true,
					Headline: p.NarrativeHeadline,
					Body:     p.NarrativeBody,
					Raw:      raw,
				},
				IsStoryworthy: p.IsStoryworthy,
			}
		}
	}

	return UpdateResult{
		Parsed:        false,
		APSummary:     strings.TrimSpace(raw),
		Narrative:     ParseNarrative(raw),
		IsStoryworthy: false,
	}
}

// stripCodeFence removes a surrounding markdown code fence, which
// models add despite instructions often enough to handle.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
