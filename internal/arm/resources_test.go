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

package arm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = Scope{
	SubscriptionID: "00000000-0000-0000-0000-000000000000",
	ResourceGroup:  "my-rg",
	Location:       "eastus",
}

func TestScopePaths(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
	}{
		{
			name:     "managed apis in default location",
			actual:   testScope.ManagedAPIsPath(""),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/providers/Microsoft.Web/locations/eastus/managedApis",
		},
		{
			name:     "managed apis in explicit location",
			actual:   testScope.ManagedAPIsPath("westeurope"),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/providers/Microsoft.Web/locations/westeurope/managedApis",
		},
		{
			name:     "single managed api",
			actual:   testScope.ManagedAPIPath("", "outlook"),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/providers/Microsoft.Web/locations/eastus/managedApis/outlook",
		},
		{
			name:     "connections collection",
			actual:   testScope.ConnectionsPath(),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/my-rg/providers/Microsoft.Web/connections",
		},
		{
			name:     "single connection",
			actual:   testScope.ConnectionPath("outlook-1"),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/my-rg/providers/Microsoft.Web/connections/outlook-1",
		},
		{
			name:     "consent links action",
			actual:   testScope.ConsentLinksPath("outlook-1"),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/my-rg/providers/Microsoft.Web/connections/outlook-1/listConsentLinks",
		},
		{
			name:     "dynamic invoke action",
			actual:   testScope.DynamicInvokePath("outlook-1"),
			expected: "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/my-rg/providers/Microsoft.Web/connections/outlook-1/dynamicInvoke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}
}

func TestConnectionFromJSON(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		expected    ConnectionInfo
		expectError bool
	}{
		{
			name: "fully populated",
			doc: `{
				"name": "outlook-1",
				"properties": {
					"displayName": "Work Mail",
					"api": {
						"id": "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/outlook",
						"name": "outlook"
					},
					"statuses": [{"status": "Connected"}]
				}
			}`,
			expected: ConnectionInfo{
				Name:        "outlook-1",
				APIName:     "outlook",
				APIID:       "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/outlook",
				DisplayName: "Work Mail",
				Status:      ConnectionStatusConnected,
			},
		},
		{
			name: "api name derived from id",
			doc: `{
				"name": "teams-1",
				"properties": {
					"api": {"id": "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/teams"},
					"overallStatus": "Error"
				}
			}`,
			expected: ConnectionInfo{
				Name:        "teams-1",
				APIName:     "teams",
				APIID:       "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/teams",
				DisplayName: "teams-1",
				Status:      ConnectionStatusError,
			},
		},
		{
			name: "status falls back to overallStatus",
			doc: `{
				"name": "sql-1",
				"properties": {
					"api": {"name": "sql"},
					"statuses": [],
					"overallStatus": "unauthenticated"
				}
			}`,
			expected: ConnectionInfo{
				Name:        "sql-1",
				APIName:     "sql",
				DisplayName: "sql-1",
				Status:      ConnectionStatusUnauthenticated,
			},
		},
		{
			name: "unrecognized status maps to unknown",
			doc:  `{"name": "x", "properties": {"api": {"name": "x"}, "statuses": [{"status": "Degraded"}]}}`,
			expected: ConnectionInfo{
				Name:        "x",
				APIName:     "x",
				DisplayName: "x",
				Status:      ConnectionStatusUnknown,
			},
		},
		{
			name:        "missing name",
			doc:         `{"properties": {"api": {"name": "outlook"}}}`,
			expectError: true,
		},
		{
			name:        "missing api reference",
			doc:         `{"name": "outlook-1", "properties": {}}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ConnectionFromJSON([]byte(tt.doc))
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, info)
		})
	}
}

func TestConnectionsFromList(t *testing.T) {
	doc := `{
		"value": [
			{"name": "outlook-1", "properties": {"api": {"name": "outlook"}}},
			{"properties": {"api": {"name": "nameless"}}},
			{"name": "teams-1", "properties": {"api": {"name": "teams"}}}
		]
	}`

	infos, skipped := ConnectionsFromList([]byte(doc))

	require.Len(t, infos, 2)
	assert.Equal(t, "outlook-1", infos[0].Name)
	assert.Equal(t, "teams-1", infos[1].Name)
	require.Len(t, skipped, 1)
	assert.ErrorContains(t, skipped[0], "no name")
}

func TestSwaggerFromManagedAPI(t *testing.T) {
	doc := `{
		"name": "outlook",
		"properties": {
			"swagger": {"swagger": "2.0", "info": {"title": "Outlook"}, "paths": {}}
		}
	}`

	swagger, ok := SwaggerFromManagedAPI([]byte(doc))
	require.True(t, ok)
	assert.JSONEq(t, `{"swagger": "2.0", "info": {"title": "Outlook"}, "paths": {}}`, string(swagger))

	_, ok = SwaggerFromManagedAPI([]byte(`{"name": "outlook", "properties": {}}`))
	assert.False(t, ok)

	_, ok = SwaggerFromManagedAPI([]byte(`{"name": "outlook", "properties": {"swagger": "not-an-object"}}`))
	assert.False(t, ok)
}
