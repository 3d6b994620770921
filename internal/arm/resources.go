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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// APIVersionDefault is the api-version for Microsoft.Web connection and
	// managed API operations, including dynamicInvoke.
	APIVersionDefault = "2016-06-01"

	// APIVersionConsentLinks is the api-version required by the
	// listConsentLinks operation, which is not served at 2016-06-01.
	APIVersionConsentLinks = "2018-07-01-preview"
)

// Scope identifies the subscription, resource group and location that every
// ARM call in this process operates on. Values are fixed at startup.
type Scope struct {
	SubscriptionID string
	ResourceGroup  string
	Location       string
}

// ManagedAPIsPath returns the collection path for managed APIs in the given
// location, falling back to the scope's default location when empty.
func (s Scope) ManagedAPIsPath(location string) string {
	if location == "" {
		location = s.Location
	}
	return fmt.Sprintf("/subscriptions/%s/providers/Microsoft.Web/locations/%s/managedApis",
		s.SubscriptionID, location)
}

// ManagedAPIPath returns the resource path for a single managed API.
func (s Scope) ManagedAPIPath(location, apiName string) string {
	return s.ManagedAPIsPath(location) + "/" + apiName
}

// ManagedAPIID returns the fully qualified resource ID recorded in a
// connection's properties.api.id field.
func (s Scope) ManagedAPIID(location, apiName string) string {
	return s.ManagedAPIPath(location, apiName)
}

// ConnectionsPath returns the collection path for API connections in the
// scope's resource group.
func (s Scope) ConnectionsPath() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Web/connections",
		s.SubscriptionID, s.ResourceGroup)
}

// ConnectionPath returns the resource path for a single API connection.
func (s Scope) ConnectionPath(connectionName string) string {
	return s.ConnectionsPath() + "/" + connectionName
}

// ConsentLinksPath returns the action path that mints interactive consent
// links for a connection.
func (s Scope) ConsentLinksPath(connectionName string) string {
	return s.ConnectionPath(connectionName) + "/listConsentLinks"
}

// DynamicInvokePath returns the action path that proxies an operation
// invocation through a connection.
func (s Scope) DynamicInvokePath(connectionName string) string {
	return s.ConnectionPath(connectionName) + "/dynamicInvoke"
}

// ConnectionStatus is the coarse connection health reported by ARM.
type ConnectionStatus string

const (
	ConnectionStatusConnected       ConnectionStatus = "Connected"
	ConnectionStatusUnauthenticated ConnectionStatus = "Unauthenticated"
	ConnectionStatusError           ConnectionStatus = "Error"
	ConnectionStatusUnknown         ConnectionStatus = "Unknown"
)

func connectionStatusFrom(value string) ConnectionStatus {
	switch {
	case strings.EqualFold(value, string(ConnectionStatusConnected)):
		return ConnectionStatusConnected
	case strings.EqualFold(value, string(ConnectionStatusUnauthenticated)):
		return ConnectionStatusUnauthenticated
	case strings.EqualFold(value, string(ConnectionStatusError)):
		return ConnectionStatusError
	default:
		return ConnectionStatusUnknown
	}
}

// ConnectionInfo is the projection of a Microsoft.Web/connections resource
// that the rest of the process operates on.
type ConnectionInfo struct {
	// Name is the ARM resource name of the connection.
	Name string

	// APIName is the short managed API name, e.g. "outlook" or "teams".
	APIName string

	// APIID is the fully qualified resource ID of the managed API.
	APIID string

	// DisplayName is the human-facing connection name.
	DisplayName string

	// Status summarizes the connection's first reported status, the overall
	// status when none is reported, or Unknown.
	Status ConnectionStatus
}

// ConnectionFromJSON projects a connection resource document into a
// ConnectionInfo. It fails when the resource name or the managed API
// reference is missing, since neither can be recovered downstream.
func ConnectionFromJSON(doc []byte) (ConnectionInfo, error) {
	name := gjson.GetBytes(doc, "name").String()
	if name == "" {
		return ConnectionInfo{}, fmt.Errorf("connection resource has no name")
	}

	apiID := gjson.GetBytes(doc, "properties.api.id").String()
	apiName := gjson.GetBytes(doc, "properties.api.name").String()
	if apiName == "" && apiID != "" {
		apiName = apiID[strings.LastIndex(apiID, "/")+1:]
	}
	if apiName == "" {
		return ConnectionInfo{}, fmt.Errorf("connection %q has no managed API reference", name)
	}

	displayName := gjson.GetBytes(doc, "properties.displayName").String()
	if displayName == "" {
		displayName = name
	}

	status := gjson.GetBytes(doc, "properties.statuses.0.status").String()
	if status == "" {
		status = gjson.GetBytes(doc, "properties.overallStatus").String()
	}

	return ConnectionInfo{
		Name:        name,
		APIName:     apiName,
		APIID:       apiID,
		DisplayName: displayName,
		Status:      connectionStatusFrom(status),
	}, nil
}

// ConnectionsFromList projects an ARM list response ({"value":[...]}) into
// ConnectionInfo values. Entries missing mandatory fields are skipped and
// reported so the caller can log them without aborting the scan.
func ConnectionsFromList(doc json.RawMessage) ([]ConnectionInfo, []error) {
	var infos []ConnectionInfo
	var skipped []error

	gjson.GetBytes(doc, "value").ForEach(func(_, item gjson.Result) bool {
		info, err := ConnectionFromJSON([]byte(item.Raw))
		if err != nil {
			skipped = append(skipped, err)
			return true
		}
		infos = append(infos, info)
		return true
	})

	return infos, skipped
}

// SwaggerFromManagedAPI extracts the embedded Swagger 2.0 document from a
// managed API resource. The boolean reports whether the resource carries one.
func SwaggerFromManagedAPI(doc json.RawMessage) (json.RawMessage, bool) {
	swagger := gjson.GetBytes(doc, "properties.swagger")
	if !swagger.Exists() || !swagger.IsObject() {
		return nil, false
	}
	return json.RawMessage(swagger.Raw), true
}
