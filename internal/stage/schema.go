package stage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const conceptsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["concepts"],
  "properties": {
    "concepts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["term", "explanation"],
        "properties": {
          "term": {"type": "string", "minLength": 1},
          "explanation": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

const quizSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["question", "choices", "answer"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "choices": {
            "type": "array",
            "minItems": 2,
            "maxItems": 6,
            "items": {"type": "string", "minLength": 1}
          },
          "answer": {"type": "string", "minLength": 1},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema map[string]*jsonschema.Schema
	schemaErr      error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		sources := map[string]string{
			"concepts.json": conceptsSchema,
			"quiz.json":     quizSchema,
		}
		compiler := jsonschema.NewCompiler()
		for name, source := range sources {
			if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		compiledSchema = make(map[string]*jsonschema.Schema, len(sources))
		for name := range sources {
			schema, err := compiler.Compile(name)
			if err != nil {
				schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiledSchema[name] = schema
		}
	})
	return compiledSchema, schemaErr
}

// validateDocument checks a decoded JSON value against the named schema.
func validateDocument(name string, data []byte) error {
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
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
