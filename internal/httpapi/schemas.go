package httpapi

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// transcriptEntriesSchema enforces spec.md §6's "body MUST be an object
// {entries: [...]}; a bare array is a 400 error" rule for POST
// /apps/voice/sessions/{id}/transcript.
const transcriptEntriesSchema = `{
	"type": "object",
	"required": ["entries"],
	"properties": {
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"type": "string", "enum": ["user", "assistant", "tool_call", "tool_result"]},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

// toolsExecuteSchema validates POST /apps/voice/tools/execute's body.
const toolsExecuteSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "enum": ["delegate", "cancel_current_task", "pause_replies", "resume_replies"]},
		"arguments": {"type": "object"}
	}
}`

type schemaRegistry struct {
	once              sync.Once
	initErr           error
	transcriptEntries *jsonschema.Schema
	toolsExecute      *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		te, err := jsonschema.CompileString("transcript_entries", transcriptEntriesSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.transcriptEntries = te

		tx, err := jsonschema.CompileString("tools_execute", toolsExecuteSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.toolsExecute = tx
	})
	return schemas.initErr
}

// validateAgainst decodes raw as generic JSON and validates it against
// schema, returning a single descriptive error on the first violation.
func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}
