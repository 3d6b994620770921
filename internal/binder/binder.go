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

// Package binder compiles managed API documents into dynamic tools: it scans
// the resource group's connections, parses and filters each API's Swagger
// document, generates typed input schemas, registers one tool per surviving
// operation and translates invocations into ARM dynamicInvoke calls.
package binder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/connections-mcp/internal/arm"
	"github.com/Azure/connections-mcp/internal/mcp"
	"github.com/Azure/connections-mcp/internal/metrics"
	"github.com/Azure/connections-mcp/internal/swagger"
)

// ARMClient is the slice of the ARM pipeline the binder needs.
type ARMClient interface {
	Do(ctx context.Context, method, path string, opts *arm.RequestOptions) (json.RawMessage, error)
}

// ToolRegistrar is the slice of the transport the binder needs: tool
// registration and the list-changed notification.
type ToolRegistrar interface {
	RegisterTool(tool mcp.Tool) error
	NotifyToolListChanged()
}

// Tally counts the outcome of one registration pass.
type Tally struct {
	Registered int
	Skipped    int
	Errors     int
}

func (t *Tally) add(other Tally) {
	t.Registered += other.Registered
	t.Skipped += other.Skipped
	t.Errors += other.Errors
}

func (t Tally) String() string {
	return fmt.Sprintf("%d registered, %d skipped, %d errors", t.Registered, t.Skipped, t.Errors)
}

// Binder keeps the dynamic tool table in sync with the resource group's
// connections.
type Binder struct {
	scope     arm.Scope
	client    ARMClient
	registry  *Registry
	registrar ToolRegistrar
	logger    *slog.Logger
	emitter   metrics.Emitter
}

// New returns a Binder operating on scope through client, binding tools into
// registry and registrar.
func New(scope arm.Scope, client ARMClient, registry *Registry, registrar ToolRegistrar, logger *slog.Logger, emitter metrics.Emitter) *Binder {
	if emitter == nil {
		emitter = metrics.Noop{}
	}
	return &Binder{
		scope:     scope,
		client:    client,
		registry:  registry,
		registrar: registrar,
		logger:    logger,
		emitter:   emitter,
	}
}

// ScanAll lists every connection in the resource group and registers tools
// for each one. Per-connection failures are tallied and logged, never fatal;
// only a failure to list the connections themselves aborts the scan.
func (b *Binder) ScanAll(ctx context.Context) (Tally, error) {
	payload, err := b.client.Do(ctx, http.MethodGet, b.scope.ConnectionsPath(), nil)
	if err != nil {
		return Tally{}, fmt.Errorf("listing connections: %w", err)
	}

	connections, malformed := arm.ConnectionsFromList(payload)
	var tally Tally
	for _, err := range malformed {
		b.logger.Warn("skipping malformed connection resource", "error", err.Error())
		tally.Errors++
	}

	b.logger.Info("scanning connections", "count", len(connections))
	for _, conn := range connections {
		tally.add(b.bindConnection(ctx, conn))
	}

	b.logger.Info("scan finished",
		"registered", tally.Registered,
		"skipped", tally.Skipped,
		"errors", tally.Errors)
	return tally, nil
}

// RegisterConnection is the incremental path taken after put_connection. If
// the API already has tools the call short-circuits with a zero tally. On a
// net-positive registration the list-changed notification fires exactly
// once.
func (b *Binder) RegisterConnection(ctx context.Context, conn arm.ConnectionInfo) Tally {
	if b.registry.HasAPIPrefix(conn.APIName) {
		b.logger.Debug("api already bound, skipping registration", "api", conn.APIName)
		return Tally{}
	}

	tally := b.bindConnection(ctx, conn)
	if tally.Registered > 0 {
		b.registrar.NotifyToolListChanged()
	}
	return tally
}

// Refresh drops the swagger cache and re-runs the scan. The tool table is
// kept: already-bound APIs short-circuit through name collisions, new ones
// register.
func (b *Binder) Refresh(ctx context.Context) (Tally, error) {
	b.registry.CacheClear()
	return b.ScanAll(ctx)
}

// bindConnection fetches, compiles and registers one connection's API.
func (b *Binder) bindConnection(ctx context.Context, conn arm.ConnectionInfo) Tally {
	logger := b.logger.With("connection", conn.Name, "api", conn.APIName)

	doc, cached := b.registry.CacheGet(conn.APIName)
	if !cached {
		var err error
		doc, err = b.client.Do(ctx, http.MethodGet, b.scope.ManagedAPIPath("", conn.APIName), &arm.RequestOptions{
			Query: url.Values{"export": []string{"true"}},
		})
		if err != nil {
			logger.Error("fetching managed API document failed", "error", err.Error())
			return Tally{Errors: 1}
		}
		b.registry.CachePut(conn.APIName, doc)
	}

	swaggerDoc, ok := arm.SwaggerFromManagedAPI(doc)
	if !ok {
		logger.Warn("managed API document has no embedded swagger, skipping")
		return Tally{}
	}

	operations, err := swagger.Parse(swaggerDoc)
	if err != nil {
		logger.Error("parsing swagger failed", "error", err.Error())
		return Tally{Errors: 1}
	}
	operations = swagger.Filter(operations)

	var tally Tally
	for _, op := range operations {
		name := ToolName(conn.APIName, op.OperationID)

		if err := b.registry.Put(name, Entry{Connection: conn, Operation: op}); err != nil {
			logger.Debug("tool name already bound, skipping", "tool", name)
			tally.Skipped++
			continue
		}

		err := b.registrar.RegisterTool(mcp.Tool{
			Name:        name,
			Description: describe(conn, op),
			Schema:      GenerateSchema(op),
			Handler:     b.handler(conn, op),
		})
		if err != nil {
			b.registry.Remove(name)
			if errors.Is(err, mcp.ErrToolExists) {
				logger.Debug("tool name taken by a static tool, skipping", "tool", name)
				tally.Skipped++
			} else {
				logger.Error("registering tool failed", "tool", name, "error", err.Error())
				tally.Errors++
			}
			continue
		}

		b.emitter.AddCounter(metrics.ToolsRegisteredTotal, 1, map[string]string{"api": conn.APIName})
		tally.Registered++
	}

	logger.Info("bound connection",
		"registered", tally.Registered,
		"skipped", tally.Skipped,
		"errors", tally.Errors)
	return tally
}

// handler returns the tool handler for one operation: translate, invoke,
// shape. Every failure comes back as an error-flagged result; nothing
// propagates to the transport.
func (b *Binder) handler(conn arm.ConnectionInfo, op swagger.Operation) mcp.HandlerFunc {
	return func(ctx context.Context, params map[string]any) *mcp.Result {
		envelope := BuildEnvelope(op, params)

		payload, err := b.client.Do(ctx, http.MethodPost, b.scope.DynamicInvokePath(conn.Name), &arm.RequestOptions{
			Body: envelope,
		})
		if err != nil {
			return mcp.NewErrorResult("Error invoking %s/%s: %s", conn.APIName, op.OperationID, err)
		}

		return mcp.NewTextResult(ExtractResponseBody(payload))
	}
}

// describe composes the tool description shown to the client, flagging
// connections whose credentials still need consent.
func describe(conn arm.ConnectionInfo, op swagger.Operation) string {
	text := op.Summary
	if text == "" {
		text = op.Description
	}

	description := strings.TrimSpace(fmt.Sprintf("[%s] %s", conn.DisplayName, text))
	if conn.Status != arm.ConnectionStatusConnected {
		description += " ⚠️ Connection not authenticated"
	}
	return description
}
