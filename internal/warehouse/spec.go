package warehouse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// FieldSpec is one entry of a user-supplied custom schema:
//
//	- name: experiment_name
//	  field_type: string
//	  mode: required
//	  description: The name of the experiment
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	FieldType   string `json:"field_type" yaml:"field_type"`
	Mode        string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParseSchemaSpecs validates specs and converts them to a Schema. Names are
// lowercased, mode defaults to NULLABLE. Every invalid entry is reported.
func ParseSchemaSpecs(specs []FieldSpec) (Schema, error) {
	var result *multierror.Error
	schema := make(Schema, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for i, spec := range specs {
		name := strings.ToLower(strings.TrimSpace(spec.Name))
		if name == "" || strings.TrimSpace(spec.FieldType) == "" {
			result = multierror.Append(result, fmt.Errorf("column %d: name and field_type are required", i))
			continue
		}
		if err := ValidateIdentifier(name); err != nil {
			result = multierror.Append(result, fmt.Errorf("column %d: %w", i, err))
			continue
		}
		if seen[name] {
			result = multierror.Append(result, fmt.Errorf("column %q: defined twice", name))
			continue
		}
		seen[name] = true

		ft, err := ParseFieldType(spec.FieldType)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("column %q: %w", name, err))
			continue
		}

		mode := ModeNullable
		switch Mode(strings.ToUpper(strings.TrimSpace(spec.Mode))) {
		case "", ModeNullable:
		case ModeRequired:
			mode = ModeRequired
		default:
			result = multierror.Append(result, fmt.Errorf("column %q: mode %q must be nullable or required", name, spec.Mode))
			continue
		}

		schema = append(schema, Field{Name: name, Type: ft, Mode: mode, Description: spec.Description})
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return schema, nil
}

// SchemaSpecs converts a schema back to its user-facing form.
func SchemaSpecs(schema Schema) []FieldSpec {
	specs := make([]FieldSpec, len(schema))
	for i, f := range schema {
		specs[i] = FieldSpec{
			Name:        f.Name,
			FieldType:   strings.ToLower(string(f.Type)),
			Mode:        strings.ToLower(string(f.Mode)),
			Description: f.Description,
		}
	}
	return specs
}

// LoadSchemaFile reads a custom schema from a YAML or JSON file.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	var specs []FieldSpec
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &specs)
	} else {
		err = yaml.Unmarshal(data, &specs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidSchema, path, err)
	}
	return ParseSchemaSpecs(specs)
}
