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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Azure/connections-mcp/internal/arm"
	"github.com/Azure/connections-mcp/internal/binder"
	"github.com/Azure/connections-mcp/internal/mcp"
	"github.com/Azure/connections-mcp/internal/swagger"
)

var testScope = arm.Scope{
	SubscriptionID: "sub",
	ResourceGroup:  "rg",
	Location:       "eastus",
}

type armCall struct {
	method string
	path   string
	opts   *arm.RequestOptions
}

type fakeARM struct {
	calls   []armCall
	payload json.RawMessage
	err     error
}

func (f *fakeARM) Do(_ context.Context, method, path string, opts *arm.RequestOptions) (json.RawMessage, error) {
	f.calls = append(f.calls, armCall{method: method, path: path, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeARM) lastCall(t *testing.T) armCall {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeBinder struct {
	registered  []arm.ConnectionInfo
	registerOut binder.Tally
	refreshOut  binder.Tally
	refreshErr  error
	refreshed   int
}

func (f *fakeBinder) RegisterConnection(_ context.Context, conn arm.ConnectionInfo) binder.Tally {
	f.registered = append(f.registered, conn)
	return f.registerOut
}

func (f *fakeBinder) Refresh(context.Context) (binder.Tally, error) {
	f.refreshed++
	return f.refreshOut, f.refreshErr
}

type fakeRegistrar struct {
	order []string
}

func (f *fakeRegistrar) RegisterTool(tool mcp.Tool) error {
	f.order = append(f.order, tool.Name)
	return nil
}

func newTestTools(armClient ARMClient, connBinder ConnectionBinder) (*Tools, *binder.Registry) {
	registry := binder.NewRegistry()
	return New(testScope, armClient, connBinder, registry, slog.New(slog.DiscardHandler)), registry
}

func TestRegisterAddsStaticTools(t *testing.T) {
	tools, _ := newTestTools(&fakeARM{}, &fakeBinder{})

	registrar := &fakeRegistrar{}
	require.NoError(t, tools.Register(registrar))

	assert.Equal(t, []string{
		"list_managed_apis",
		"put_connection",
		"list_connections",
		"get_consent_link",
		"list_dynamic_tools",
		"refresh_tools",
	}, registrar.order)
}

func TestListManagedAPIs(t *testing.T) {
	armClient := &fakeARM{payload: json.RawMessage(`{
		"value": [
			{"name": "office365", "properties": {"displayName": "Office 365 Outlook", "description": "Send and receive email."}},
			{"name": "teams", "properties": {"generalInformation": {"displayName": "Microsoft Teams"}}},
			{"name": "salesforce", "properties": {"displayName": "Salesforce"}}
		]
	}`)}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.listManagedAPIs(context.Background(), map[string]any{"microsoftOnly": true})

	require.NotNil(t, result)
	require.False(t, result.IsError)
	body := result.Content[0].Text
	assert.Equal(t, int64(2), gjson.Get(body, "count").Int())
	assert.Equal(t, "office365", gjson.Get(body, "apis.0.name").String())
	assert.Equal(t, "Microsoft Teams", gjson.Get(body, "apis.1.displayName").String())
	assert.Equal(t, "eastus", gjson.Get(body, "location").String())
	assert.NotContains(t, body, "salesforce")

	call := armClient.lastCall(t)
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, testScope.ManagedAPIsPath(""), call.path)
}

func TestListManagedAPIsUnfiltered(t *testing.T) {
	armClient := &fakeARM{payload: json.RawMessage(`{
		"value": [
			{"name": "office365", "properties": {"displayName": "Office 365 Outlook"}},
			{"name": "salesforce", "properties": {"displayName": "Salesforce"}}
		]
	}`)}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.listManagedAPIs(context.Background(), map[string]any{
		"location":      "westus",
		"microsoftOnly": false,
	})

	require.False(t, result.IsError)
	body := result.Content[0].Text
	assert.Equal(t, int64(2), gjson.Get(body, "count").Int())
	assert.Equal(t, "westus", gjson.Get(body, "location").String())
	assert.Equal(t, testScope.ManagedAPIsPath("westus"), armClient.lastCall(t).path)
}

func TestPutConnectionRegistersDynamicTools(t *testing.T) {
	putResponse := json.RawMessage(`{
		"name": "office365",
		"properties": {
			"displayName": "Office 365 Outlook",
			"api": {"id": "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/office365"},
			"statuses": [{"status": "Unauthenticated"}]
		}
	}`)
	armClient := &fakeARM{payload: putResponse}
	connBinder := &fakeBinder{registerOut: binder.Tally{Registered: 3, Skipped: 1}}
	tools, _ := newTestTools(armClient, connBinder)

	result := tools.putConnection(context.Background(), map[string]any{
		"connectionName": "office365",
		"managedApiName": "office365",
		"displayName":    "Office 365 Outlook",
		"parameterValues": map[string]any{
			"token:TenantId": "tenant",
		},
	})

	require.False(t, result.IsError)
	body := result.Content[0].Text
	assert.Equal(t, int64(3), gjson.Get(body, "dynamicTools.registered").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "dynamicTools.skipped").Int())
	assert.Equal(t, "office365", gjson.Get(body, "name").String())

	require.Len(t, connBinder.registered, 1)
	assert.Equal(t, "office365", connBinder.registered[0].APIName)
	assert.Equal(t, arm.ConnectionStatusUnauthenticated, connBinder.registered[0].Status)

	call := armClient.lastCall(t)
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, testScope.ConnectionPath("office365"), call.path)

	sent, err := json.Marshal(call.opts.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"location": "eastus",
		"properties": {
			"displayName": "Office 365 Outlook",
			"api": {"id": "/subscriptions/sub/providers/Microsoft.Web/locations/eastus/managedApis/office365"},
			"parameterValues": {"token:TenantId": "tenant"}
		}
	}`, string(sent))
}

func TestPutConnectionOmitsSummaryOnShortCircuit(t *testing.T) {
	putResponse := json.RawMessage(`{
		"name": "office365",
		"properties": {"api": {"name": "office365"}}
	}`)
	armClient := &fakeARM{payload: putResponse}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.putConnection(context.Background(), map[string]any{
		"connectionName": "office365",
		"managedApiName": "office365",
		"displayName":    "Office 365 Outlook",
	})

	require.False(t, result.IsError)
	assert.False(t, gjson.Get(result.Content[0].Text, "dynamicTools").Exists(),
		"an already-bound API adds no summary")
}

func TestPutConnectionShapesARMErrors(t *testing.T) {
	armClient := &fakeARM{err: arm.NewCloudError(http.StatusConflict, "MissingSubscriptionRegistration", "",
		"The subscription is not registered to use namespace Microsoft.Web")}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.putConnection(context.Background(), map[string]any{
		"connectionName": "office365",
		"managedApiName": "office365",
		"displayName":    "Office 365 Outlook",
	})

	require.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Error creating connection office365:")
	assert.Contains(t, result.Content[0].Text, "MissingSubscriptionRegistration")
}

func TestListConnections(t *testing.T) {
	armClient := &fakeARM{payload: json.RawMessage(`{
		"value": [
			{
				"name": "office365",
				"properties": {
					"displayName": "Work Mail",
					"api": {"name": "office365"},
					"statuses": [{"status": "Connected"}]
				}
			},
			{"name": "broken"}
		]
	}`)}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.listConnections(context.Background(), nil)

	require.False(t, result.IsError)
	body := result.Content[0].Text
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, "office365", gjson.Get(body, "connections.0.apiName").String())
	assert.Equal(t, "Connected", gjson.Get(body, "connections.0.status").String())
}

func TestGetConsentLink(t *testing.T) {
	armClient := &fakeARM{payload: json.RawMessage(`{"value":[{"link":"https://login.example/consent"}]}`)}
	tools, _ := newTestTools(armClient, &fakeBinder{})

	result := tools.getConsentLink(context.Background(), map[string]any{
		"connectionName": "office365",
		"objectId":       "00000000-0000-0000-0000-000000000001",
		"tenantId":       "common",
	})

	require.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "https://login.example/consent")

	call := armClient.lastCall(t)
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, testScope.ConsentLinksPath("office365"), call.path)
	require.NotNil(t, call.opts)
	assert.Equal(t, arm.APIVersionConsentLinks, call.opts.APIVersion)

	sent, err := json.Marshal(call.opts.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"parameters": [{
			"parameterName": "token",
			"redirectUrl": "http://localhost:8080",
			"objectId": "00000000-0000-0000-0000-000000000001",
			"tenantId": "common"
		}]
	}`, string(sent))
}

func TestGetConsentLinkSchemaDefaultsTenant(t *testing.T) {
	tools, _ := newTestTools(&fakeARM{}, &fakeBinder{})

	validated, err := tools.getConsentLinkSchema().Validate(map[string]any{
		"connectionName": "office365",
		"objectId":       "oid",
	})
	require.NoError(t, err)
	assert.Equal(t, "common", validated["tenantId"])
}

func TestListDynamicTools(t *testing.T) {
	tools, registry := newTestTools(&fakeARM{}, &fakeBinder{})
	require.NoError(t, registry.Put("office365_send_email", binder.Entry{
		Connection: arm.ConnectionInfo{APIName: "office365"},
		Operation: swagger.Operation{
			OperationID: "SendEmail",
			Method:      "post",
			Path:        "/{connectionId}/v2/Mail",
			Summary:     "Send an email",
		},
	}))

	result := tools.listDynamicTools(context.Background(), nil)

	require.False(t, result.IsError)
	body := result.Content[0].Text
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, "office365_send_email", gjson.Get(body, "tools.0.name").String())
	assert.Equal(t, "SendEmail", gjson.Get(body, "tools.0.operationId").String())
	assert.Equal(t, "POST", gjson.Get(body, "tools.0.method").String())
}

func TestRefreshTools(t *testing.T) {
	connBinder := &fakeBinder{refreshOut: binder.Tally{Registered: 2, Skipped: 5}}
	tools, _ := newTestTools(&fakeARM{}, connBinder)

	result := tools.refreshTools(context.Background(), nil)

	require.False(t, result.IsError)
	assert.Equal(t, "Refresh complete: 2 registered, 5 skipped, 0 errors", result.Content[0].Text)
	assert.Equal(t, 1, connBinder.refreshed)
}

func TestRefreshToolsReportsFailure(t *testing.T) {
	connBinder := &fakeBinder{refreshErr: fmt.Errorf("listing connections: boom")}
	tools, _ := newTestTools(&fakeARM{}, connBinder)

	result := tools.refreshTools(context.Background(), nil)

	require.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Error refreshing dynamic tools:")
}
