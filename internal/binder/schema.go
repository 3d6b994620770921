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

package binder

import (
	"fmt"
	"strings"

	"github.com/Azure/connections-mcp/internal/mcp"
	"github.com/Azure/connections-mcp/internal/swagger"
)

// connectionIDParam is injected by the invocation layer and never surfaces
// in a tool's input schema.
const connectionIDParam = "connectionId"

// SanitizeKey maps an arbitrary parameter name onto the tool naming pattern
// ^[a-zA-Z0-9_.-]{1,64}$. The mapping is deterministic and idempotent:
// $filter → _filter, $top → _top, "" → param.
func SanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".-")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if len(out) > 64 {
		out = out[:64]
	}
	if out == "" {
		out = "param"
	}
	return out
}

// GenerateSchema flattens an operation into the tool input schema:
// non-connectionId parameters first, then request body properties, both in
// document order under sanitized keys. A body property whose sanitized name
// collides with a parameter gets a body_ prefix.
func GenerateSchema(op swagger.Operation) *mcp.Schema {
	schema := mcp.NewSchema()

	for _, param := range op.Parameters {
		if param.Name == connectionIDParam {
			continue
		}
		schema.Set(SanitizeKey(param.Name), paramSpec(param))
	}

	if op.RequestBody != nil {
		for _, property := range op.RequestBody.Properties {
			if property.Format == "binary" {
				continue
			}
			key := SanitizeKey(property.Name)
			if schema.Has(key) {
				key = "body_" + key
			}
			schema.Set(key, propertySpec(property))
		}
	}

	return schema
}

func paramSpec(param swagger.Parameter) mcp.ParamSpec {
	spec := mcp.ParamSpec{
		Required:    param.Required,
		Description: param.Description,
		Default:     param.Default,
	}

	switch {
	case param.Type == "integer":
		spec.Kind = mcp.KindInteger
	case param.Type == "boolean":
		spec.Kind = mcp.KindBoolean
	case param.Type == "array":
		spec.Kind = mcp.KindArray
	case len(param.Enum) > 0:
		spec.Kind = mcp.KindEnum
		spec.EnumValues = enumStrings(param.Enum)
	default:
		spec.Kind = mcp.KindString
	}

	return spec
}

func propertySpec(property swagger.BodyProperty) mcp.ParamSpec {
	spec := mcp.ParamSpec{
		Required:    property.Required,
		Description: property.Description,
		Default:     property.Default,
	}

	switch {
	case property.Type == "integer" || property.Type == "number":
		spec.Kind = mcp.KindNumber
	case property.Type == "boolean":
		spec.Kind = mcp.KindBoolean
	case property.Type == "array":
		spec.Kind = mcp.KindArray
	case property.Type == "object" || property.Type == swagger.TypeStringJSON:
		spec.Kind = mcp.KindObject
	case len(property.Enum) > 0:
		spec.Kind = mcp.KindEnum
		spec.EnumValues = enumStrings(property.Enum)
	default:
		spec.Kind = mcp.KindString
	}

	return spec
}

func enumStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if text, ok := value.(string); ok {
			out = append(out, text)
			continue
		}
		out = append(out, fmt.Sprintf("%v", value))
	}
	return out
}
