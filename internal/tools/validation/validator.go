// Package validation schema-checks write-tool parameters before a pending
// action is created, so confirmation prompts always describe parameters
// that will succeed if confirmed.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldError locates one invalid parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a structured validation failure for one write-tool call. It is
// fed back into the model's context so the model can retry with corrected
// parameters.
type Error struct {
	Tool   string       `json:"tool"`
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Tool, strings.Join(parts, "; "))
}

// Validator holds the compiled parameter schemas for every write tool.
// Write tools without a registered schema fail closed.
type Validator struct {
	once    sync.Once
	initErr error
	schemas map[string]*jsonschema.Schema
}

// NewValidator returns a validator over the built-in write-tool schemas.
// Compilation is deferred to first use; a compile failure surfaces on
// every Validate call rather than panicking at startup.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) init() error {
	v.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true

		v.schemas = make(map[string]*jsonschema.Schema, len(writeToolSchemas))
		for tool, src := range writeToolSchemas {
			url := "concierge://write-tools/" + tool + ".json"
			if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
				v.initErr = fmt.Errorf("validation: add schema %s: %w", tool, err)
				return
			}
			compiled, err := compiler.Compile(url)
			if err != nil {
				v.initErr = fmt.Errorf("validation: compile schema %s: %w", tool, err)
				return
			}
			v.schemas[tool] = compiled
		}
	})
	return v.initErr
}

// HasSchema reports whether a schema is registered for the tool.
func (v *Validator) HasSchema(tool string) bool {
	_, ok := writeToolSchemas[tool]
	return ok
}

// Validate checks write-tool parameters against the tool's schema and
// cross-field rules. On success it returns the parameters re-encoded in
// compact form. The returned *Error is nil on success; any internal
// failure (unknown tool, malformed JSON, compile error) is reported as a
// validation error too, since the caller's recovery is the same.
func (v *Validator) Validate(tool string, params json.RawMessage) (json.RawMessage, *Error) {
	if err := v.init(); err != nil {
		return nil, &Error{Tool: tool, Fields: []FieldError{{Message: err.Error()}}}
	}

	schema, ok := v.schemas[tool]
	if !ok {
		return nil, &Error{Tool: tool, Fields: []FieldError{
			{Message: "no parameter schema registered for write tool"},
		}}
	}

	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}

	var payload any
	if err := json.Unmarshal(params, &payload); err != nil {
		return nil, &Error{Tool: tool, Fields: []FieldError{
			{Message: "parameters are not valid JSON: " + err.Error()},
		}}
	}

	if err := schema.Validate(payload); err != nil {
		return nil, &Error{Tool: tool, Fields: fieldErrors(err)}
	}

	obj, _ := payload.(map[string]any)
	if fields := crossFieldErrors(tool, obj); len(fields) > 0 {
		return nil, &Error{Tool: tool, Fields: fields}
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Tool: tool, Fields: []FieldError{{Message: err.Error()}}}
	}
	return normalized, nil
}

// fieldErrors flattens a jsonschema validation error tree into per-field
// messages, keeping leaf causes only.
func fieldErrors(err error) []FieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []FieldError{{Message: err.Error()}}
	}

	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, FieldError{
				Field:   instancePath(e.InstanceLocation),
				Message: e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}

func instancePath(loc string) string {
	return strings.TrimPrefix(strings.ReplaceAll(loc, "/", "."), ".")
}

// crossFieldErrors enforces relations the JSON Schemas cannot express:
// end times after start times and end dates not before start dates.
func crossFieldErrors(tool string, obj map[string]any) []FieldError {
	if obj == nil {
		return nil
	}

	str := func(key string) (string, bool) {
		s, ok := obj[key].(string)
		return s, ok && s != ""
	}

	var out []FieldError
	requireAfter := func(startKey, endKey string) {
		start, okStart := str(startKey)
		end, okEnd := str(endKey)
		// HH:MM and YYYY-MM-DD both order lexicographically.
		if okStart && okEnd && end <= start {
			out = append(out, FieldError{
				Field:   endKey,
				Message: fmt.Sprintf("must be after %s", startKey),
			})
		}
	}
	requireNotBefore := func(startKey, endKey string) {
		start, okStart := str(startKey)
		end, okEnd := str(endKey)
		if okStart && okEnd && end < start {
			out = append(out, FieldError{
				Field:   endKey,
				Message: fmt.Sprintf("must not be before %s", startKey),
			})
		}
	}

	switch tool {
	case "create_shift", "update_shift", "create_event", "update_event":
		requireAfter("start_time", "end_time")
	case "create_leave_request":
		requireNotBefore("start_date", "end_date")
	}
	return out
}
