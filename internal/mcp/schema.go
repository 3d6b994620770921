// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"bytes"
	"encoding/json"
)

// Kind is the value type of a tool parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindEnum    Kind = "enum"
)

// ParamSpec describes one tool parameter. The validator consumes it; the
// schema marshaler renders it as a JSON Schema property.
type ParamSpec struct {
	Kind        Kind
	Required    bool
	Description string
	Default     any
	EnumValues  []string
}

// Schema is an insertion-ordered parameter map. Order matters: clients
// render parameters in schema order, and connector schemas list the
// important ones first.
type Schema struct {
	names []string
	specs map[string]ParamSpec
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{specs: make(map[string]ParamSpec)}
}

// Set inserts or replaces a parameter, keeping the position of the first
// insertion.
func (s *Schema) Set(name string, spec ParamSpec) {
	if _, exists := s.specs[name]; !exists {
		s.names = append(s.names, name)
	}
	s.specs[name] = spec
}

// Has reports whether name is present.
func (s *Schema) Has(name string) bool {
	_, exists := s.specs[name]
	return exists
}

// Get returns the spec for name.
func (s *Schema) Get(name string) (ParamSpec, bool) {
	spec, exists := s.specs[name]
	return spec, exists
}

// Len returns the number of parameters.
func (s *Schema) Len() int {
	return len(s.names)
}

// Names returns the parameter names in insertion order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// property is the JSON Schema rendering of one ParamSpec.
type property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

func (spec ParamSpec) property() property {
	prop := property{
		Description: spec.Description,
		Default:     spec.Default,
	}
	switch spec.Kind {
	case KindEnum:
		prop.Type = "string"
		prop.Enum = spec.EnumValues
	case "":
		prop.Type = "string"
	default:
		prop.Type = string(spec.Kind)
	}
	return prop
}

// MarshalJSON renders the schema as a JSON Schema object with properties in
// insertion order. encoding/json would sort map keys, so the object is built
// by hand.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)

	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		prop, err := json.Marshal(s.specs[name].property())
		if err != nil {
			return nil, err
		}
		buf.Write(prop)
	}
	buf.WriteByte('}')

	var required []string
	for _, name := range s.names {
		if s.specs[name].Required {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		buf.WriteString(`,"required":`)
		names, err := json.Marshal(required)
		if err != nil {
			return nil, err
		}
		buf.Write(names)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
