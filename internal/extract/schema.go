package extract

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/brand-cli/internal/model"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// Section kinds.
const (
	KindObject = "object"
	KindArray  = "array"
)

// FieldSpec describes one field the model is asked to fill.
type FieldSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"` // string, array or object
	Description string `yaml:"description"`
}

// SectionSpec describes one top-level section of the brand document.
type SectionSpec struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"`
	Description string      `yaml:"description"`
	Fields      []FieldSpec `yaml:"fields"`

	validator *gojsonschema.Schema
}

// Schema is the set of sections an extraction may produce.
type Schema struct {
	Sections []SectionSpec `yaml:"sections"`

	byName map[string]*SectionSpec
}

// DefaultSchema parses the embedded section schema.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

// ParseSchema parses and compiles a YAML section schema. Every section must
// be a known document section.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "extract: parse schema")
	}
	if len(s.Sections) == 0 {
		return nil, eris.New("extract: schema has no sections")
	}

	s.byName = make(map[string]*SectionSpec, len(s.Sections))
	for i := range s.Sections {
		sec := &s.Sections[i]
		if !model.IsSection(sec.Name) {
			return nil, eris.Errorf("extract: unknown section %q", sec.Name)
		}
		if _, dup := s.byName[sec.Name]; dup {
			return nil, eris.Errorf("extract: duplicate section %q", sec.Name)
		}
		if sec.Kind != KindObject && sec.Kind != KindArray {
			return nil, eris.Errorf("extract: section %q has invalid kind %q", sec.Name, sec.Kind)
		}
		for _, f := range sec.Fields {
			if _, ok := fieldTypes[f.Type]; !ok {
				return nil, eris.Errorf("extract: field %s.%s has invalid type %q", sec.Name, f.Name, f.Type)
			}
		}

		v, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(sec.jsonSchema()))
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile schema for %s", sec.Name)
		}
		sec.validator = v
		s.byName[sec.Name] = sec
	}
	return &s, nil
}

// Section returns the definition of the named section.
func (s *Schema) Section(name string) (*SectionSpec, bool) {
	sec, ok := s.byName[name]
	return sec, ok
}

// Names returns the section names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		out[i] = sec.Name
	}
	return out
}

// Describe renders the schema as prompt text.
func (s *Schema) Describe() string {
	var b strings.Builder
	for _, sec := range s.Sections {
		shape := "object"
		if sec.Kind == KindArray {
			shape = "array of objects"
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", sec.Name, shape, sec.Description)
		for _, f := range sec.Fields {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", f.Name, f.Type, f.Description)
		}
	}
	return b.String()
}

var fieldTypes = map[string]struct{}{
	"string": {},
	"array":  {},
	"object": {},
}

func (sec *SectionSpec) jsonSchema() map[string]any {
	props := make(map[string]any, len(sec.Fields))
	for _, f := range sec.Fields {
		props[f.Name] = map[string]any{"type": []any{f.Type, "null"}}
	}
	obj := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if sec.Kind == KindArray {
		return map[string]any{"type": "array", "items": obj}
	}
	return obj
}

// Validate checks a section value against the section's shape. Fields the
// schema does not list are allowed.
func (sec *SectionSpec) Validate(value any) error {
	res, err := sec.validator.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return eris.Wrapf(err, "extract: validate %s", sec.Name)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return eris.Errorf("extract: section %s does not match schema: %s", sec.Name, strings.Join(msgs, "; "))
}

// Coerce converts numbers and booleans in string fields to strings, so a
// founding year written as 1952 is kept as "1952". The value is modified in
// place and returned.
func (sec *SectionSpec) Coerce(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if sec.Kind == KindObject {
			sec.coerceFields(v)
		}
	case []any:
		if sec.Kind == KindArray {
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					sec.coerceFields(obj)
				}
			}
		}
	}
	return value
}

func (sec *SectionSpec) coerceFields(obj map[string]any) {
	for _, f := range sec.Fields {
		if f.Type != "string" {
			continue
		}
		switch v := obj[f.Name].(type) {
		case float64:
			obj[f.Name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			obj[f.Name] = strconv.FormatBool(v)
		}
	}
}
