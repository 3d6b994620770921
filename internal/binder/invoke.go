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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Azure/connections-mcp/internal/swagger"
)

// InvokeRequest is the inner request of a dynamicInvoke envelope: the call
// ARM forwards to the backing connector.
type InvokeRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
	Queries map[string]string `json:"queries,omitempty"`
}

// InvokeEnvelope is the dynamicInvoke request body.
type InvokeEnvelope struct {
	Request InvokeRequest `json:"request"`
}

// BuildEnvelope translates validated tool parameters into the dynamicInvoke
// envelope for op. Params are keyed by sanitized names; the envelope carries
// the original connector names. The leading /{connectionId} segment of the
// operation path never reaches the wire — ARM supplies the connection.
func BuildEnvelope(op swagger.Operation, params map[string]any) InvokeEnvelope {
	path := strings.TrimPrefix(op.Path, "/{"+connectionIDParam+"}")

	queries := map[string]string{}
	for _, param := range op.Parameters {
		if param.Name == connectionIDParam {
			continue
		}
		value, present := params[SanitizeKey(param.Name)]
		if !present {
			continue
		}
		switch param.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+param.Name+"}", stringify(value))
		case "query":
			queries[param.Name] = stringify(value)
		}
	}
	if len(queries) == 0 {
		queries = nil
	}

	var body map[string]any
	if op.RequestBody != nil {
		body = map[string]any{}
		for _, property := range op.RequestBody.Properties {
			key := SanitizeKey(property.Name)
			value, present := params[key]
			if !present {
				value, present = params["body_"+key]
			}
			if !present {
				continue
			}
			body[property.Name] = bodyValue(property, value)
		}
		if len(body) == 0 {
			body = nil
		}
	}

	request := InvokeRequest{
		Method:  strings.ToUpper(op.Method),
		Path:    path,
		Body:    body,
		Queries: queries,
	}
	if body != nil {
		request.Headers = map[string]string{"Content-Type": "application/json"}
	}

	return InvokeEnvelope{Request: request}
}

// bodyValue prepares one body property value. Properties typed object (or
// the structured-or-JSON-string synthetic) accept a JSON-encoded string; it
// is decoded when it parses and kept raw when it does not.
func bodyValue(property swagger.BodyProperty, value any) any {
	if property.Type != "object" && property.Type != swagger.TypeStringJSON {
		return value
	}
	text, ok := value.(string)
	if !ok {
		return value
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text
	}
	return parsed
}

// ExtractResponseBody pulls response.body out of a dynamicInvoke response,
// falling back to the whole payload. The return value is JSON text.
func ExtractResponseBody(payload json.RawMessage) string {
	if body := gjson.GetBytes(payload, "response.body"); body.Exists() {
		return body.Raw
	}
	return string(payload)
}

// stringify renders a parameter value for a path segment or query string.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
