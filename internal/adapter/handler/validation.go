package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

const maxBodySize = 1 << 20

type FieldType int

const (
	TypeString FieldType = iota
	TypeInteger
	TypeNumber
	TypeBoolean
	// TypeMoney accepts a JSON number or a decimal string.
	TypeMoney
	TypeObject
	TypeArray
	// TypeStringMap is an object whose values are all strings.
	TypeStringMap
)

// Field declares one request field. Children describe the properties of an
// object, or of each element of an array of objects. Element is used for
// arrays of scalars instead.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Allowed  []string
	Min      *float64
	Children []Field
	Element  FieldType
}

// Schema is the declarative description of a request: path params, query
// params and JSON body fields share one namespace.
type Schema []Field

// Validator is a compiled Schema, built once and reused for every request.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

func Compile(name string, s Schema) (Validator, error) {
	doc, err := json.Marshal(objectSchema(s))
	if err != nil {
		return Validator{}, fmt.Errorf("encode schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://fulfillment.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return Validator{}, fmt.Errorf("load schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return Validator{}, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return Validator{name: name, schema: compiled}, nil
}

// MustCompile panics on an invalid schema; schemas are static program data.
func MustCompile(name string, s Schema) Validator {
	v, err := Compile(name, s)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a merged request view and reports the first violation.
func (v Validator) Validate(input map[string]any) error {
	if v.schema == nil {
		return nil
	}
	err := v.schema.Validate(input)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	location := strings.TrimPrefix(ve.InstanceLocation, "/")
	if location == "" {
		return fmt.Errorf("%w: %s", domain.ErrValidation, ve.Message)
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrValidation, strings.ReplaceAll(location, "/", "."), ve.Message)
}

// Bind merges path params, query params and the JSON body, validates the
// result, then decodes the body into dst when dst is not nil.
func (v Validator) Bind(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: unreadable body", domain.ErrValidation)
	}

	merged := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &merged); err != nil {
			return fmt.Errorf("%w: body must be a JSON object", domain.ErrValidation)
		}
	}
	for key, values := range r.URL.Query() {
		if _, exists := merged[key]; !exists && len(values) > 0 {
			merged[key] = values[0]
		}
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			merged[key] = rctx.URLParams.Values[i]
		}
	}

	if err := v.Validate(merged); err != nil {
		return err
	}
	if dst != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
	}
	return nil
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func fieldSchema(f Field) map[string]any {
	s := typeSchema(f.Type)
	switch f.Type {
	case TypeString:
		if len(f.Allowed) > 0 {
			s["enum"] = f.Allowed
		} else if f.Required {
			s["minLength"] = 1
		}
	case TypeInteger, TypeNumber:
		if f.Min != nil {
			s["minimum"] = *f.Min
		}
	case TypeObject:
		s = objectSchema(f.Children)
	case TypeArray:
		if len(f.Children) > 0 {
			s["items"] = objectSchema(f.Children)
		} else {
			s["items"] = typeSchema(f.Element)
		}
		if f.Required {
			s["minItems"] = 1
		}
	}
	return s
}

func typeSchema(t FieldType) map[string]any {
	switch t {
	case TypeInteger:
		return map[string]any{"type": "integer"}
	case TypeNumber:
		return map[string]any{"type": "number"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	case TypeMoney:
		return map[string]any{"type": []string{"number", "string"}, "pattern": `^-?[0-9]+(\.[0-9]+)?$`}
	case TypeObject:
		return map[string]any{"type": "object"}
	case TypeArray:
		return map[string]any{"type": "array"}
	case TypeStringMap:
		return map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}}
	default:
		return map[string]any{"type": "string"}
	}
}

func minimum(n float64) *float64 {
	return &n
}
