package ai

import (
	"fmt"
	"strings"
)

const classificationResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "summary": { "type": "string" },
    "tags": {
      "type": "array",
      "items": { "type": "string", "pattern": "^[a-z0-9]+( [a-z0-9]+)*$" }
    },
    "categories": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "required": ["summary", "tags", "categories"],
  "additionalProperties": false
}`

const classificationPromptTemplate = `You organize a personal archive of chat conversations.
Read the conversation and return JSON describing it.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- summary is one or two plain sentences about what the conversation covers.
- tags are the %d most useful topics, lowercase, 1-3 words each, most relevant first.
- categories must be chosen only from this list: %s.
- Pick one category unless the conversation clearly spans several. Use "%s" when nothing fits.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.`

// ClassificationPrompt renders the system instructions for a JSON classification call.
// Answers that do not fit the categories fall back to UncategorizedCategory.
func ClassificationPrompt(maxTags int, categories []string) string {
	quoted := make([]string, len(categories))
	for i, c := range categories {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(classificationPromptTemplate,
		classificationResponseSchema, maxTags, strings.Join(quoted, ", "), UncategorizedCategory)
}
