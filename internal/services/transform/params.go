package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/docpipe/internal/models"
)

// ParamType is the declared type of an operation parameter
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
)

// ParamSpec declares one parameter. Rule is a go-playground/validator tag
// applied to the parsed value.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Default     string    `json:"default,omitempty"`
	Rule        string    `json:"rule,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ParamSet holds validated, typed parameter values
type ParamSet struct {
	values map[string]interface{}
}

// NewParamSet wraps already-typed values. Validate is the normal constructor.
func NewParamSet(values map[string]interface{}) ParamSet {
	if values == nil {
		values = map[string]interface{}{}
	}
	return ParamSet{values: values}
}

func (p ParamSet) Int(name string) int {
	v, _ := p.values[name].(int)
	return v
}

func (p ParamSet) Float(name string) float64 {
	v, _ := p.values[name].(float64)
	return v
}

func (p ParamSet) String(name string) string {
	v, _ := p.values[name].(string)
	return v
}

func (p ParamSet) Bool(name string) bool {
	v, _ := p.values[name].(bool)
	return v
}

// Has reports whether the parameter was supplied or defaulted
func (p ParamSet) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

var validate = validator.New()

// Validate fills defaults, rejects unknown, missing and malformed parameters
// with ErrInvalidParameter, and returns the typed set.
// An empty string counts as not supplied.
func Validate(spec *HandlerSpec, raw map[string]string) (ParamSet, error) {
	declared := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		declared[p.Name] = true
	}

	var unknown []string
	for name := range raw {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ParamSet{}, fmt.Errorf("%w: %s does not take %s", models.ErrInvalidParameter, spec.Name, strings.Join(unknown, ", "))
	}

	values := make(map[string]interface{}, len(spec.Params))
	for _, p := range spec.Params {
		value := strings.TrimSpace(raw[p.Name])
		if p.Type == ParamString {
			// passwords and watermark text keep their spaces
			value = raw[p.Name]
		}
		if value == "" {
			value = p.Default
		}
		if value == "" {
			if p.Required {
				return ParamSet{}, fmt.Errorf("%w: %s is required", models.ErrInvalidParameter, p.Name)
			}
			continue
		}

		parsed, err := parseParam(p, value)
		if err != nil {
			return ParamSet{}, err
		}
		if p.Rule != "" {
			if err := validate.Var(parsed, p.Rule); err != nil {
				return ParamSet{}, fmt.Errorf("%w: %s=%q violates %s", models.ErrInvalidParameter, p.Name, value, p.Rule)
			}
		}
		values[p.Name] = parsed
	}

	return ParamSet{values: values}, nil
}

func parseParam(p ParamSpec, value string) (interface{}, error) {
	switch p.Type {
	case ParamInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrInvalidParameter, p.Name, value)
		}
		return n, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", models.ErrInvalidParameter, p.Name, value)
		}
		return f, nil
	case ParamBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be true or false, got %q", models.ErrInvalidParameter, p.Name, value)
		}
		return b, nil
	default:
		return value, nil
	}
}
