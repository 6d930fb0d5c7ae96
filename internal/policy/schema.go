package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ruleSchema describes one rule. Action is only typed here, not enumerated,
// so an unknown action surfaces as ErrInvalidAction from ValidateRules and a
// missing one defaults to deny.
const ruleSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"condition": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"tool_pattern": {"type": "string"},
				"action_type": {"type": "string"},
				"trust_level_at_least": {"type": "string"},
				"trust_level_below": {"type": "string"}
			}
		},
		"action": {"type": "string"},
		"message": {"type": "string"}
	}
}`

var rulesSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"items": ` + ruleSchema + `
}`

var fileSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["policies"],
	"properties": {
		"policies": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["policy_id", "rules"],
				"additionalProperties": false,
				"properties": {
					"policy_id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"description": {"type": "string"},
					"priority": {"type": "integer"},
					"enabled": {"type": "boolean"},
					"rules": {"type": "array", "items": ` + ruleSchema + `}
				}
			}
		}
	}
}`

var (
	rulesSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compileSchema("rules.json", rulesSchemaJSON)
	})
	fileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compileSchema("policy-file.json", fileSchemaJSON)
	})
)

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add %s: %w", name, err)
	}
	return c.Compile(name)
}

// ParseRules decodes a JSON array of rules, checks it against the rule schema
// and then against ValidateRules.
func ParseRules(raw []byte) ([]Rule, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrEmptyRules
	}

	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("%w: rules is not valid JSON: %v", ErrInvalidPolicy, err)
	}
	sch, err := rulesSchema()
	if err != nil {
		return nil, fmt.Errorf("ParseRules: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return ValidateRules(rules)
}
