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
	"fmt"
	"math"
	"slices"
)

// Validate checks client-supplied arguments against the schema and returns
// the validated parameter map, with defaults filled in for absent optional
// parameters. Arguments not named by the schema are dropped. Values keep
// their JSON-decoded representations (float64 for numbers, and either a map
// or a raw string for object parameters).
func (s *Schema) Validate(arguments map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(s.names))

	for _, name := range s.names {
		spec := s.specs[name]

		value, present := arguments[name]
		if !present || value == nil {
			if spec.Default != nil {
				params[name] = spec.Default
			} else if spec.Required {
				return nil, fmt.Errorf("missing required parameter %q", name)
			}
			continue
		}

		checked, err := checkKind(name, spec, value)
		if err != nil {
			return nil, err
		}
		params[name] = checked
	}

	return params, nil
}

func checkKind(name string, spec ParamSpec, value any) (any, error) {
	switch spec.Kind {
	case KindString, "":
		if _, ok := value.(string); !ok {
			return nil, fmt.Errorf("parameter %q must be a string", name)
		}

	case KindInteger:
		number, ok := value.(float64)
		if !ok || number != math.Trunc(number) {
			return nil, fmt.Errorf("parameter %q must be an integer", name)
		}

	case KindNumber:
		if _, ok := value.(float64); !ok {
			return nil, fmt.Errorf("parameter %q must be a number", name)
		}

	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean", name)
		}

	case KindArray:
		if _, ok := value.([]any); !ok {
			return nil, fmt.Errorf("parameter %q must be an array", name)
		}

	case KindObject:
		// Objects are accepted structured or as a JSON-encoded string; the
		// invocation layer decides how to decode the string form.
		switch value.(type) {
		case map[string]any, string:
		default:
			return nil, fmt.Errorf("parameter %q must be an object or a JSON string", name)
		}

	case KindEnum:
		text, ok := value.(string)
		if !ok || !slices.Contains(spec.EnumValues, text) {
			return nil, fmt.Errorf("parameter %q must be one of %v", name, spec.EnumValues)
		}

	default:
		return nil, fmt.Errorf("parameter %q has unsupported kind %q", name, spec.Kind)
	}

	return value, nil
}
