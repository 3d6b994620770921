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

// Package server registers the static connection-management tools: listing
// managed APIs and connections, provisioning connections, minting consent
// links and driving the dynamic tool lifecycle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Azure/connections-mcp/internal/arm"
	"github.com/Azure/connections-mcp/internal/binder"
	"github.com/Azure/connections-mcp/internal/mcp"
)

// consentRedirectURL is the fixed OAuth redirect used by consent links. The
// consent flow completes in the user's browser; the server never listens
// there.
const consentRedirectURL = "http://localhost:8080"

// ARMClient is the slice of the ARM pipeline the static tools need.
type ARMClient interface {
	Do(ctx context.Context, method, path string, opts *arm.RequestOptions) (json.RawMessage, error)
}

// ConnectionBinder is the slice of the lifecycle coordinator the static tools
// drive: incremental registration after put_connection and the full refresh.
type ConnectionBinder interface {
	RegisterConnection(ctx context.Context, conn arm.ConnectionInfo) binder.Tally
	Refresh(ctx context.Context) (binder.Tally, error)
}

// Tools owns the six static tools. The dynamic connector tools are registered
// separately by the binder.
type Tools struct {
	scope    arm.Scope
	client   ARMClient
	binder   ConnectionBinder
	registry *binder.Registry
	logger   *slog.Logger
}

// New returns the static tool set operating on scope through client.
func New(scope arm.Scope, client ARMClient, connBinder ConnectionBinder, registry *binder.Registry, logger *slog.Logger) *Tools {
	return &Tools{
		scope:    scope,
		client:   client,
		binder:   connBinder,
		registry: registry,
		logger:   logger,
	}
}

// Registrar is transport-side tool registration.
type Registrar interface {
	RegisterTool(tool mcp.Tool) error
}

// Register adds all six static tools to the registrar. Registration order is
// presentation order in tools/list.
func (t *Tools) Register(registrar Registrar) error {
	for _, tool := range []mcp.Tool{
		{
			Name:        "list_managed_apis",
			Description: "List the managed APIs (connectors) available in an Azure region, such as office365, teams or sql.",
			Schema:      t.listManagedAPIsSchema(),
			Handler:     t.listManagedAPIs,
		},
		{
			Name:        "put_connection",
			Description: "Create or update an API connection to a managed API. On success the connector's operations are registered as new tools.",
			Schema:      t.putConnectionSchema(),
			Handler:     t.putConnection,
		},
		{
			Name:        "list_connections",
			Description: "List the API connections in the configured resource group with their authorization status.",
			Schema:      mcp.NewSchema(),
			Handler:     t.listConnections,
		},
		{
			Name:        "get_consent_link",
			Description: "Get an interactive consent link used to authorize a connection on behalf of a user.",
			Schema:      t.getConsentLinkSchema(),
			Handler:     t.getConsentLink,
		},
		{
			Name:        "list_dynamic_tools",
			Description: "List the dynamically registered connector tools and the operations they map to.",
			Schema:      mcp.NewSchema(),
			Handler:     t.listDynamicTools,
		},
		{
			Name:        "refresh_tools",
			Description: "Re-scan the resource group's connections and register tools for newly arrived APIs.",
			Schema:      mcp.NewSchema(),
			Handler:     t.refreshTools,
		},
	} {
		if err := registrar.RegisterTool(tool); err != nil {
			return fmt.Errorf("registering static tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func (t *Tools) listManagedAPIsSchema() *mcp.Schema {
	schema := mcp.NewSchema()
	schema.Set("location", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Description: "Azure region to query. Defaults to the configured location.",
	})
	schema.Set("microsoftOnly", mcp.ParamSpec{
		Kind:        mcp.KindBoolean,
		Default:     true,
		Description: "Only return first-party Microsoft connectors.",
	})
	return schema
}

// microsoftPrefixes marks first-party connector names. The managed API list
// carries no publisher field at this api-version, so the microsoftOnly filter
// goes by product branding.
var microsoftPrefixes = []string{
	"azure", "office365", "outlook", "teams", "sharepoint", "onedrive",
	"onenote", "excel", "word", "planner", "todo", "dynamics", "sql",
	"keyvault", "eventgrid", "servicebus", "powerbi", "microsoft", "msn",
	"bing", "cognitiveservices", "commondataservice", "visualstudio", "wdatp",
}

func isMicrosoftAPI(name, displayName string) bool {
	if strings.Contains(strings.ToLower(displayName), "microsoft") {
		return true
	}
	lower := strings.ToLower(name)
	for _, prefix := range microsoftPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

type managedAPISummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

func (t *Tools) listManagedAPIs(ctx context.Context, params map[string]any) *mcp.Result {
	location := stringArg(params, "location")
	microsoftOnly := true
	if v, ok := params["microsoftOnly"].(bool); ok {
		microsoftOnly = v
	}

	payload, err := t.client.Do(ctx, http.MethodGet, t.scope.ManagedAPIsPath(location), nil)
	if err != nil {
		return mcp.NewErrorResult("Error listing managed APIs: %s", err)
	}

	apis := []managedAPISummary{}
	gjson.GetBytes(payload, "value").ForEach(func(_, item gjson.Result) bool {
		summary := managedAPISummary{
			Name:        item.Get("name").String(),
			DisplayName: firstString(item, "properties.displayName", "properties.generalInformation.displayName"),
			Description: firstString(item, "properties.description", "properties.generalInformation.description"),
		}
		if summary.Name == "" {
			return true
		}
		if microsoftOnly && !isMicrosoftAPI(summary.Name, summary.DisplayName) {
			return true
		}
		apis = append(apis, summary)
		return true
	})

	if location == "" {
		location = t.scope.Location
	}
	return jsonResult(struct {
		Location string              `json:"location"`
		Count    int                 `json:"count"`
		APIs     []managedAPISummary `json:"apis"`
	}{Location: location, Count: len(apis), APIs: apis})
}

func (t *Tools) putConnectionSchema() *mcp.Schema {
	schema := mcp.NewSchema()
	schema.Set("connectionName", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Required:    true,
		Description: "Resource name for the connection, unique within the resource group.",
	})
	schema.Set("managedApiName", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Required:    true,
		Description: "Managed API to connect to, e.g. office365 or teams.",
	})
	schema.Set("displayName", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Required:    true,
		Description: "Human-facing name for the connection.",
	})
	schema.Set("parameterValues", mcp.ParamSpec{
		Kind:        mcp.KindObject,
		Description: "Connector-specific connection parameters, e.g. a server name or an API key.",
	})
	schema.Set("location", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Description: "Azure region for the connection. Defaults to the configured location.",
	})
	return schema
}

func (t *Tools) putConnection(ctx context.Context, params map[string]any) *mcp.Result {
	connectionName := stringArg(params, "connectionName")
	apiName := stringArg(params, "managedApiName")
	location := stringArg(params, "location")
	if location == "" {
		location = t.scope.Location
	}

	properties := map[string]any{
		"displayName": stringArg(params, "displayName"),
		"api":         map[string]any{"id": t.scope.ManagedAPIID(location, apiName)},
	}
	if values := objectArg(params, "parameterValues"); len(values) > 0 {
		properties["parameterValues"] = values
	}

	payload, err := t.client.Do(ctx, http.MethodPut, t.scope.ConnectionPath(connectionName), &arm.RequestOptions{
		Body: map[string]any{
			"location":   location,
			"properties": properties,
		},
	})
	if err != nil {
		return mcp.NewErrorResult("Error creating connection %s: %s", connectionName, err)
	}

	conn, err := arm.ConnectionFromJSON(payload)
	if err != nil {
		t.logger.Warn("PUT response is not a usable connection, skipping tool registration",
			"connection", connectionName, "error", err.Error())
		return mcp.NewTextResult(string(payload))
	}

	// A zero tally means the API was already bound or had nothing to
	// register; the response passes through without a summary.
	tally := t.binder.RegisterConnection(ctx, conn)
	if tally == (binder.Tally{}) {
		return mcp.NewTextResult(string(payload))
	}

	enriched, err := sjson.SetBytes(payload, "dynamicTools", map[string]int{
		"registered": tally.Registered,
		"skipped":    tally.Skipped,
		"errors":     tally.Errors,
	})
	if err != nil {
		return mcp.NewTextResult(string(payload))
	}
	return mcp.NewTextResult(string(enriched))
}

type connectionSummary struct {
	Name        string `json:"name"`
	APIName     string `json:"apiName"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

func (t *Tools) listConnections(ctx context.Context, _ map[string]any) *mcp.Result {
	payload, err := t.client.Do(ctx, http.MethodGet, t.scope.ConnectionsPath(), nil)
	if err != nil {
		return mcp.NewErrorResult("Error listing connections: %s", err)
	}

	infos, malformed := arm.ConnectionsFromList(payload)
	for _, err := range malformed {
		t.logger.Warn("skipping malformed connection resource", "error", err.Error())
	}

	connections := make([]connectionSummary, 0, len(infos))
	for _, info := range infos {
		connections = append(connections, connectionSummary{
			Name:        info.Name,
			APIName:     info.APIName,
			DisplayName: info.DisplayName,
			Status:      string(info.Status),
		})
	}

	return jsonResult(struct {
		Count       int                 `json:"count"`
		Connections []connectionSummary `json:"connections"`
	}{Count: len(connections), Connections: connections})
}

func (t *Tools) getConsentLinkSchema() *mcp.Schema {
	schema := mcp.NewSchema()
	schema.Set("connectionName", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Required:    true,
		Description: "Connection to mint a consent link for.",
	})
	schema.Set("objectId", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Required:    true,
		Description: "Entra object id of the user who will authorize the connection.",
	})
	schema.Set("tenantId", mcp.ParamSpec{
		Kind:        mcp.KindString,
		Default:     "common",
		Description: "Entra tenant of the authorizing user.",
	})
	return schema
}

func (t *Tools) getConsentLink(ctx context.Context, params map[string]any) *mcp.Result {
	connectionName := stringArg(params, "connectionName")

	payload, err := t.client.Do(ctx, http.MethodPost, t.scope.ConsentLinksPath(connectionName), &arm.RequestOptions{
		APIVersion: arm.APIVersionConsentLinks,
		Body: map[string]any{
			"parameters": []map[string]any{{
				"parameterName": "token",
				"redirectUrl":   consentRedirectURL,
				"objectId":      stringArg(params, "objectId"),
				"tenantId":      stringArg(params, "tenantId"),
			}},
		},
	})
	if err != nil {
		return mcp.NewErrorResult("Error getting consent link for %s: %s", connectionName, err)
	}
	return mcp.NewTextResult(string(payload))
}

type dynamicToolSummary struct {
	Name        string `json:"name"`
	API         string `json:"api"`
	OperationID string `json:"operationId"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Summary     string `json:"summary,omitempty"`
}

func (t *Tools) listDynamicTools(_ context.Context, _ map[string]any) *mcp.Result {
	entries := t.registry.Snapshot()

	tools := make([]dynamicToolSummary, 0, len(entries))
	for _, entry := range entries {
		tools = append(tools, dynamicToolSummary{
			Name:        entry.Name,
			API:         entry.Connection.APIName,
			OperationID: entry.Operation.OperationID,
			Method:      strings.ToUpper(entry.Operation.Method),
			Path:        entry.Operation.Path,
			Summary:     entry.Operation.Summary,
		})
	}

	return jsonResult(struct {
		Count int                  `json:"count"`
		Tools []dynamicToolSummary `json:"tools"`
	}{Count: len(tools), Tools: tools})
}

func (t *Tools) refreshTools(ctx context.Context, _ map[string]any) *mcp.Result {
	tally, err := t.binder.Refresh(ctx)
	if err != nil {
		return mcp.NewErrorResult("Error refreshing dynamic tools: %s", err)
	}
	return mcp.NewTextResult(fmt.Sprintf("Refresh complete: %s", tally))
}

func stringArg(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return value
}

// objectArg reads an object-kind argument, accepting either a map or a
// JSON-encoded string the same way the argument validator does.
func objectArg(params map[string]any, key string) map[string]any {
	switch value := params[key].(type) {
	case map[string]any:
		return value
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			return parsed
		}
	}
	return nil
}

func firstString(item gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := item.Get(path); value.Exists() {
			return value.String()
		}
	}
	return ""
}

func jsonResult(v any) *mcp.Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewErrorResult("Error encoding result: %s", err)
	}
	return mcp.NewTextResult(string(data))
}
