// Package schema builds and enforces the per-dataset open-parameters JSON
// Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Names of the recognised open parameters.
const (
	VariableNames = "variable_names"
	TimeRange     = "time_range"
	BBox          = "bbox"
	NormalizeData = "normalize_data"
)

// Schema is a JSON Schema (draft 7) node.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Title                string             `json:"title,omitempty"`
	Description          string             `json:"description,omitempty"`
	Format               string             `json:"format,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Default              any                `json:"default,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
	// Items is either a *Schema or, for tuples, a []*Schema.
	Items       any  `json:"items,omitempty"`
	MinItems    *int `json:"minItems,omitempty"`
	MaxItems    *int `json:"maxItems,omitempty"`
	UniqueItems bool `json:"uniqueItems,omitempty"`
}

// Accepts reports whether the object schema declares the named property.
func (s *Schema) Accepts(name string) bool {
	_, ok := s.Properties[name]
	return ok
}

// PropertyNames returns the declared properties in sorted order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForDataset builds the open-parameters schema of a dataset with the given
// data variables. bbox is only declared when the grid supports spatial
// subsetting in geographic coordinates.
func ForDataset(varNames []string, spatialSubset bool) *Schema {
	enum := make([]any, len(varNames))
	for i, n := range varNames {
		enum[i] = n
	}
	date := &Schema{Type: "string", Format: "date"}
	props := map[string]*Schema{
		NormalizeData: {
			Type:        "boolean",
			Description: "Rename lat/lon coordinates, wrap longitudes and make the y axis ascend.",
			Default:     false,
		},
		TimeRange: {
			Type:        "array",
			Description: "Inclusive start and end dates.",
			Items:       []*Schema{date, date},
			MinItems:    intPtr(2),
			MaxItems:    intPtr(2),
		},
		VariableNames: {
			Type:        "array",
			Description: "Variables to open. All variables when omitted.",
			Items:       &Schema{Type: "string", Enum: enum},
			UniqueItems: true,
		},
	}
	if spatialSubset {
		num := &Schema{Type: "number"}
		props[BBox] = &Schema{
			Type:        "array",
			Description: "x_min, y_min, x_max, y_max.",
			Items:       []*Schema{num, num, num, num},
			MinItems:    intPtr(4),
			MaxItems:    intPtr(4),
		}
	}
	return &Schema{
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: boolPtr(false),
	}
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

// Params is an open-parameters record as supplied by a caller. Keys outside
// the dataset schema are kept so that validation can reject them.
type Params map[string]any

// ValidationError reports open parameters that do not conform to a schema.
type ValidationError struct {
	// Fields names the offending parameters.
	Fields []string
	// Reasons holds one message per violation.
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid open parameters: " + strings.Join(e.Reasons, "; ")
}

// Is makes errors.Is(err, ErrInvalidParams) hold for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidParams
}

var quotedRE = regexp.MustCompile(`'([^']*)'`)

// Validate checks params against s.
func Validate(s *Schema, params Params) error {
	compiled, err := compile(s)
	if err != nil {
		return err
	}
	doc, err := jsonValue(params)
	if err != nil {
		return err
	}
	err = compiled.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, leaf := range leaves(ve) {
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if i := strings.Index(field, "/"); i >= 0 {
			field = field[:i]
		}
		if field == "" && strings.HasSuffix(leaf.KeywordLocation, "/additionalProperties") {
			for _, m := range quotedRE.FindAllStringSubmatch(leaf.Message, -1) {
				out.add(m[1], fmt.Sprintf("parameter %q is not supported by this dataset", m[1]))
			}
			continue
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out.add(field, fmt.Sprintf("%s: %s", loc, leaf.Message))
	}
	return out
}

func (e *ValidationError) add(field, reason string) {
	if field != "" && !slices.Contains(e.Fields, field) {
		e.Fields = append(e.Fields, field)
	}
	e.Reasons = append(e.Reasons, reason)
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func compile(s *Schema) (*jsonschema.Schema, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	const url = "mem://open_params.json"
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("load open-parameters schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile open-parameters schema: %w", err)
	}
	return compiled, nil
}

// jsonValue converts params into the generic form the validator expects.
func jsonValue(params Params) (any, error) {
	if params == nil {
		params = Params{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalJSON decodes items into a *Schema or a tuple of schemas.
func (s *Schema) UnmarshalJSON(b []byte) error {
	type plain Schema
	aux := struct {
		*plain
		Items json.RawMessage `json:"items,omitempty"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Items = nil
	items := bytes.TrimSpace(aux.Items)
	switch {
	case len(items) == 0:
	case items[0] == '[':
		var tuple []*Schema
		if err := json.Unmarshal(items, &tuple); err != nil {
			return err
		}
		s.Items = tuple
	default:
		var one Schema
		if err := json.Unmarshal(items, &one); err != nil {
			return err
		}
		s.Items = &one
	}
	return nil
}
