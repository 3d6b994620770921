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

package swagger

import "encoding/json"

// Visibility values carried by the x-ms-visibility extension.
const (
	VisibilityNone      = "none"
	VisibilityImportant = "important"
	VisibilityAdvanced  = "advanced"
	VisibilityInternal  = "internal"
)

// TypeStringJSON is the synthetic type assigned to nested object properties.
// Callers may supply such a property either as structured JSON or as a
// JSON-encoded string.
const TypeStringJSON = "string (JSON)"

// APIAnnotation mirrors the x-ms-api-annotation extension that groups
// evolving revisions of the same logical action into a family.
type APIAnnotation struct {
	Family   string
	Revision int
	Status   string
}

// DynamicValues mirrors the x-ms-dynamic-values extension: a hint that the
// legal values of a parameter come from another operation of the same API.
type DynamicValues struct {
	OperationID     string
	ValueCollection string
	ValuePath       string
	ValueTitle      string
	Parameters      map[string]any
}

// Parameter is a non-body operation parameter.
type Parameter struct {
	Name          string
	In            string // path, query or header
	Type          string
	Format        string
	Required      bool
	Description   string
	Default       any
	Enum          []any
	DynamicValues *DynamicValues
}

// BodyProperty is one flattened top-level property of a request body schema.
type BodyProperty struct {
	Name        string
	Type        string
	Format      string
	Description string
	Required    bool
	Visibility  string
	Enum        []any
	Default     any
}

// RequestBody is the flattened body parameter of an operation. Properties
// preserve the order they appear in the source document.
type RequestBody struct {
	Required       bool
	RequiredFields []string
	Properties     []BodyProperty
}

// Operation is the result of compiling one (path, method) pair of a Swagger
// 2.0 document. Immutable after Parse returns it.
type Operation struct {
	OperationID string
	Method      string // lowercase
	Path        string // templated, typically beginning with /{connectionId}
	Summary     string
	Description string
	Deprecated  bool
	Visibility  string
	IsTrigger   bool
	Annotation  *APIAnnotation
	Parameters  []Parameter
	RequestBody *RequestBody

	// ResponseSchema is the resolved 200/201 response schema, informational
	// only.
	ResponseSchema json.RawMessage
}
