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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/connections-mcp/internal/swagger"
)

func marshalEnvelope(t *testing.T, envelope InvokeEnvelope) string {
	t.Helper()
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return string(data)
}

func TestBuildEnvelopeSendEmail(t *testing.T) {
	op := swagger.Operation{
		OperationID: "SendEmail",
		Method:      "post",
		Path:        "/{connectionId}/v2/Mail",
		Parameters: []swagger.Parameter{
			{Name: "connectionId", In: "path", Type: "string", Required: true},
		},
		RequestBody: &swagger.RequestBody{
			Required:       true,
			RequiredFields: []string{"Subject"},
			Properties: []swagger.BodyProperty{
				{Name: "Subject", Type: "string", Required: true},
				{Name: "Body", Type: "string"},
			},
		},
	}

	envelope := BuildEnvelope(op, map[string]any{"Subject": "Hello", "Body": "World"})

	assert.JSONEq(t,
		`{"request":{"method":"POST","path":"/v2/Mail","headers":{"Content-Type":"application/json"},"body":{"Subject":"Hello","Body":"World"}}}`,
		marshalEnvelope(t, envelope))
}

func TestBuildEnvelopeQuerySanitizationRoundTrip(t *testing.T) {
	op := swagger.Operation{
		OperationID: "SearchMail",
		Method:      "get",
		Path:        "/{connectionId}/v2/Mail",
		Parameters: []swagger.Parameter{
			{Name: "connectionId", In: "path", Type: "string", Required: true},
			{Name: "$filter", In: "query", Type: "string"},
			{Name: "$top", In: "query", Type: "string"},
		},
	}

	envelope := BuildEnvelope(op, map[string]any{"_filter": "isRead eq false", "_top": "10"})

	assert.Equal(t, "GET", envelope.Request.Method)
	assert.Equal(t, "/v2/Mail", envelope.Request.Path)
	assert.Equal(t, map[string]string{"$filter": "isRead eq false", "$top": "10"}, envelope.Request.Queries,
		"queries carry the original connector names")
	assert.Nil(t, envelope.Request.Body)
	assert.Nil(t, envelope.Request.Headers, "no body, no content-type header")
}

func TestBuildEnvelopePathSubstitution(t *testing.T) {
	op := swagger.Operation{
		OperationID: "GetMessage",
		Method:      "get",
		Path:        "/{connectionId}/v2/Mail/{messageId}/attachments/{attachmentId}",
		Parameters: []swagger.Parameter{
			{Name: "connectionId", In: "path", Type: "string", Required: true},
			{Name: "messageId", In: "path", Type: "string", Required: true},
			{Name: "attachmentId", In: "path", Type: "integer", Required: true},
		},
	}

	envelope := BuildEnvelope(op, map[string]any{"messageId": "AAMkAD", "attachmentId": float64(3)})

	assert.Equal(t, "/v2/Mail/AAMkAD/attachments/3", envelope.Request.Path)
	assert.False(t, strings.Contains(envelope.Request.Path, "{"), "no placeholders survive substitution")
	assert.False(t, strings.HasPrefix(envelope.Request.Path, "/{connectionId}"))
}

func TestBuildEnvelopeBodyPrefixFallback(t *testing.T) {
	op := swagger.Operation{
		OperationID: "UploadFile",
		Method:      "post",
		Path:        "/{connectionId}/files",
		Parameters: []swagger.Parameter{
			{Name: "$filter", In: "query", Type: "string"},
		},
		RequestBody: &swagger.RequestBody{
			Properties: []swagger.BodyProperty{
				{Name: "$filter", Type: "string"},
			},
		},
	}

	envelope := BuildEnvelope(op, map[string]any{"body__filter": "body-value"})

	assert.Nil(t, envelope.Request.Queries)
	assert.Equal(t, map[string]any{"$filter": "body-value"}, envelope.Request.Body,
		"colliding body properties fall back to their body_ key and keep the original name")
}

func TestBuildEnvelopeObjectValues(t *testing.T) {
	op := swagger.Operation{
		OperationID: "CreateItem",
		Method:      "post",
		Path:        "/{connectionId}/items",
		RequestBody: &swagger.RequestBody{
			Properties: []swagger.BodyProperty{
				{Name: "Item", Type: swagger.TypeStringJSON},
				{Name: "Meta", Type: "object"},
				{Name: "Note", Type: "string"},
			},
		},
	}

	tests := []struct {
		name     string
		params   map[string]any
		expected map[string]any
	}{
		{
			name:     "json string decodes",
			params:   map[string]any{"Item": `{"a":1}`},
			expected: map[string]any{"Item": map[string]any{"a": float64(1)}},
		},
		{
			name:     "non-json string kept raw",
			params:   map[string]any{"Item": "not json"},
			expected: map[string]any{"Item": "not json"},
		},
		{
			name:     "structured value passes through",
			params:   map[string]any{"Meta": map[string]any{"k": "v"}},
			expected: map[string]any{"Meta": map[string]any{"k": "v"}},
		},
		{
			name:     "string properties never decode",
			params:   map[string]any{"Note": `{"a":1}`},
			expected: map[string]any{"Note": `{"a":1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope := BuildEnvelope(op, tt.params)
			assert.Equal(t, tt.expected, envelope.Request.Body)
		})
	}
}

func TestBuildEnvelopeOmitsEmptyBody(t *testing.T) {
	op := swagger.Operation{
		OperationID: "SendEmail",
		Method:      "post",
		Path:        "/{connectionId}/v2/Mail",
		RequestBody: &swagger.RequestBody{
			Properties: []swagger.BodyProperty{
				{Name: "Subject", Type: "string"},
			},
		},
	}

	envelope := BuildEnvelope(op, map[string]any{})

	assert.Nil(t, envelope.Request.Body)
	assert.Nil(t, envelope.Request.Headers)
	assert.JSONEq(t, `{"request":{"method":"POST","path":"/v2/Mail"}}`, marshalEnvelope(t, envelope))
}

func TestExtractResponseBody(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{
			name:     "nested body object",
			payload:  `{"response":{"statusCode":200,"body":{"ok":true}}}`,
			expected: `{"ok":true}`,
		},
		{
			name:     "nested body string keeps its json form",
			payload:  `{"response":{"body":"done"}}`,
			expected: `"done"`,
		},
		{
			name:     "no nested body falls back to whole payload",
			payload:  `{"status":"Accepted"}`,
			expected: `{"status":"Accepted"}`,
		},
		{
			name:     "response without body falls back",
			payload:  `{"response":{"statusCode":204}}`,
			expected: `{"response":{"statusCode":204}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractResponseBody(json.RawMessage(tt.payload)))
		})
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "plain", stringify("plain"))
	assert.Equal(t, "10", stringify(float64(10)))
	assert.Equal(t, "2.5", stringify(float64(2.5)))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, `["a","b"]`, stringify([]any{"a", "b"}))
}
