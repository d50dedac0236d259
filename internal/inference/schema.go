package inference

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var errNoProviderAvailable = errors.New("inference: no provider configured")

const ruleSetSchemaDoc = `{
  "type": "object",
  "required": ["target_entities", "target_actions", "sensitivity"],
  "properties": {
    "target_entities": {"type": "array", "items": {"type": "string"}},
    "target_actions": {"type": "array", "items": {"type": "string"}},
    "locations": {"type": "array", "items": {"type": "string"}},
    "time_constraints": {"type": "array", "items": {"type": "string"}},
    "ignore_conditions": {"type": "array", "items": {"type": "string"}},
    "sensitivity": {"type": "string", "enum": ["low", "medium", "high"]}
  }
}`

// schemaValidator checks the normalized rule-set shape with
// santhosh-tekuri/jsonschema/v6. Schema failures are logged, not fatal,
// since normalizeRuleSet has already filled in safe defaults.
type schemaValidator struct {
	ruleSet *jsonschema.Schema
}

func newSchemaValidator() *schemaValidator {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(ruleSetSchemaDoc)))
	if err != nil {
		return &schemaValidator{}
	}
	const resourceURL = "pingwatch://inference/rule-set.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return &schemaValidator{}
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return &schemaValidator{}
	}
	return &schemaValidator{ruleSet: sch}
}

func (v *schemaValidator) validateRuleSet(rs RuleSet) error {
	if v.ruleSet == nil {
		return nil
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(raw, &inst); err != nil {
		return err
	}
	return v.ruleSet.Validate(inst)
}
