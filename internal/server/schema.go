package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// chatRequestSchema validates POST /chat payloads before decoding.
const chatRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["messages"],
	"properties": {
		"sessionId": {"type": "string"},
		"messages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"type": "string", "enum": ["system", "user", "assistant"]},
					"content": {"type": "string"}
				}
			}
		},
		"quotes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["text"],
				"properties": {
					"response_id": {"type": "integer"},
					"response_type": {"type": "string"},
					"text": {"type": "string"}
				}
			}
		},
		"persona": {"type": "string", "enum": ["daddy", "mummy", "custom"]},
		"childName": {"type": "string"},
		"customPrompt": {"type": "string"}
	}
}`

var chatSchemaLoader = gojsonschema.NewStringLoader(chatRequestSchema)

// validateChatPayload checks the raw body against the request schema and
// returns a readable error listing every violation.
func validateChatPayload(body []byte) error {
	result, err := gojsonschema.Validate(chatSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("failed to validate request: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return fmt.Errorf("invalid request: %s", strings.Join(issues, "; "))
}
