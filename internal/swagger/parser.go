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

// Package swagger compiles the Swagger 2.0 documents embedded in managed API
// resources into operation descriptors. The document is walked with gjson
// rather than decoded into Go maps because paths, parameters and body
// properties must keep their source order.
package swagger

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// maxFlattenDepth bounds how deep object body properties keep the structured
// JSON affordance; beyond it they collapse to plain objects.
const maxFlattenDepth = 2

var httpMethods = map[string]bool{
	"get":    true,
	"put":    true,
	"post":   true,
	"patch":  true,
	"delete": true,
}

// Parse compiles every (path, method) pair of a Swagger 2.0 document into an
// Operation. The result preserves the document's path and method order.
// Malformed constructs inside an operation degrade to defaults instead of
// failing the whole document; connector schemas are full of oddities.
func Parse(doc []byte) ([]Operation, error) {
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, fmt.Errorf("swagger document is not a JSON object")
	}
	paths := root.Get("paths")
	if !paths.IsObject() {
		return nil, fmt.Errorf("swagger document has no paths object")
	}

	var operations []Operation
	paths.ForEach(func(path, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		item.ForEach(func(method, op gjson.Result) bool {
			if !httpMethods[method.String()] || !op.IsObject() {
				return true
			}
			operations = append(operations, parseOperation(root, path.String(), method.String(), op))
			return true
		})
		return true
	})

	return operations, nil
}

func parseOperation(root gjson.Result, path, method string, op gjson.Result) Operation {
	operationID := op.Get("operationId").String()
	if operationID == "" {
		operationID = method + "_" + path
	}

	parsed := Operation{
		OperationID: operationID,
		Method:      method,
		Path:        path,
		Summary:     op.Get("summary").String(),
		Description: op.Get("description").String(),
		Deprecated:  op.Get("deprecated").Bool(),
		Visibility:  VisibilityNone,
		IsTrigger:   op.Get("x-ms-trigger").Exists(),
	}

	if visibility := op.Get("x-ms-visibility"); visibility.Exists() {
		parsed.Visibility = visibility.String()
	}
	if annotation := op.Get("x-ms-api-annotation"); annotation.IsObject() {
		parsed.Annotation = &APIAnnotation{
			Family:   annotation.Get("family").String(),
			Revision: int(annotation.Get("revision").Int()),
			Status:   annotation.Get("status").String(),
		}
	}

	op.Get("parameters").ForEach(func(_, raw gjson.Result) bool {
		param := resolveParameterRef(root, raw)
		if param.Get("in").String() == "body" {
			// Swagger 2.0 allows at most one body parameter; first one wins.
			if parsed.RequestBody == nil {
				parsed.RequestBody = parseRequestBody(root, param)
			}
			return true
		}
		parsed.Parameters = append(parsed.Parameters, parseParameter(param))
		return true
	})

	if schema := responseSchema(root, op); schema.Exists() {
		parsed.ResponseSchema = json.RawMessage(schema.Raw)
	}

	return parsed
}

// resolveParameterRef follows a {"$ref": "#/parameters/<name>"} indirection
// to the document's shared parameters section.
func resolveParameterRef(root, param gjson.Result) gjson.Result {
	ref := param.Get("$ref")
	if !ref.Exists() {
		return param
	}
	if resolved := resolveRef(root, ref.String()); resolved.Exists() {
		return resolved
	}
	return param
}

func parseParameter(param gjson.Result) Parameter {
	parsed := Parameter{
		Name:        param.Get("name").String(),
		In:          param.Get("in").String(),
		Type:        param.Get("type").String(),
		Format:      param.Get("format").String(),
		Required:    param.Get("required").Bool(),
		Description: param.Get("description").String(),
	}

	if def := param.Get("default"); def.Exists() {
		parsed.Default = def.Value()
	}
	if enum := param.Get("enum"); enum.IsArray() {
		for _, value := range enum.Array() {
			parsed.Enum = append(parsed.Enum, value.Value())
		}
	}
	if dynamic := param.Get("x-ms-dynamic-values"); dynamic.IsObject() {
		parsed.DynamicValues = &DynamicValues{
			OperationID:     dynamic.Get("operationId").String(),
			ValueCollection: dynamic.Get("value-collection").String(),
			ValuePath:       dynamic.Get("value-path").String(),
			ValueTitle:      dynamic.Get("value-title").String(),
		}
		if params, ok := dynamic.Get("parameters").Value().(map[string]any); ok {
			parsed.DynamicValues.Parameters = params
		}
	}

	return parsed
}

// parseRequestBody flattens the body parameter's schema one level deep: each
// top-level property becomes a BodyProperty, in document order. Properties
// with format "binary" are dropped since the invoke transport cannot carry
// raw binary.
func parseRequestBody(root gjson.Result, param gjson.Result) *RequestBody {
	schema := resolveSchema(root, param.Get("schema"))

	body := &RequestBody{
		Required: param.Get("required").Bool(),
	}

	required := make(map[string]bool)
	schema.Get("required").ForEach(func(_, field gjson.Result) bool {
		body.RequiredFields = append(body.RequiredFields, field.String())
		required[field.String()] = true
		return true
	})

	schema.Get("properties").ForEach(func(name, raw gjson.Result) bool {
		prop := resolveSchema(root, raw)
		property, ok := flattenProperty(name.String(), prop, required[name.String()], 0)
		if ok {
			body.Properties = append(body.Properties, property)
		}
		return true
	})

	return body
}

func flattenProperty(name string, prop gjson.Result, required bool, depth int) (BodyProperty, bool) {
	if prop.Get("format").String() == "binary" {
		return BodyProperty{}, false
	}

	propType := prop.Get("type").String()
	if propType == "" {
		propType = "string"
	}
	if propType == "object" && prop.Get("properties").IsObject() && depth < maxFlattenDepth {
		propType = TypeStringJSON
	}

	property := BodyProperty{
		Name:        name,
		Type:        propType,
		Format:      prop.Get("format").String(),
		Description: prop.Get("description").String(),
		Required:    required,
		Visibility:  prop.Get("x-ms-visibility").String(),
	}
	if def := prop.Get("default"); def.Exists() {
		property.Default = def.Value()
	}
	if enum := prop.Get("enum"); enum.IsArray() {
		for _, value := range enum.Array() {
			property.Enum = append(property.Enum, value.Value())
		}
	}

	return property, true
}

// responseSchema prefers the 200 response schema, then 201. Missing and 204
// responses yield no schema.
func responseSchema(root gjson.Result, op gjson.Result) gjson.Result {
	responses := op.Get("responses")
	for _, status := range []string{"200", "201"} {
		schema := responses.Get(status).Get("schema")
		if schema.Exists() {
			return resolveSchema(root, schema)
		}
	}
	return gjson.Result{}
}
