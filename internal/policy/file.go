package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk policy document loaded at startup.
type File struct {
	Policies []CreateParams `json:"policies"`
}

// LoadFile reads a YAML (or JSON) policy file and validates every policy in
// it. Nothing is written to a store.
func LoadFile(path string) ([]CreateParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile is LoadFile without the read.
func ParseFile(raw []byte) ([]CreateParams, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	// Round-trip through JSON so the schema sees plain JSON values.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	var inst any
	if err := json.Unmarshal(js, &inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	sch, err := fileSchema()
	if err != nil {
		return nil, fmt.Errorf("ParseFile: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	var f File
	if err := json.Unmarshal(js, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	for i := range f.Policies {
		rules, err := ValidateRules(f.Policies[i].Rules)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", f.Policies[i].PolicyID, err)
		}
		f.Policies[i].Rules = rules
	}
	return f.Policies, nil
}
