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
	"errors"
	"strings"
	"sync"

	"github.com/Azure/connections-mcp/internal/arm"
	"github.com/Azure/connections-mcp/internal/swagger"
)

// ErrDuplicateTool is returned by Put when the name is already bound.
var ErrDuplicateTool = errors.New("tool name already bound")

// Entry binds a registered tool name to the connection and operation that
// produced it. Read-only after insertion.
type Entry struct {
	Connection arm.ConnectionInfo
	Operation  swagger.Operation
}

// NamedEntry is an Entry together with its tool name, as returned by
// Snapshot.
type NamedEntry struct {
	Name string
	Entry
}

// Registry owns the dynamic tool table and the per-API swagger document
// cache. Both live for the whole process; the table is append-mostly and the
// cache is dropped on refresh.
type Registry struct {
	mutex   sync.RWMutex
	entries map[string]Entry
	order   []string
	cache   map[string]json.RawMessage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		cache:   make(map[string]json.RawMessage),
	}
}

// Put binds name to entry. A name can only be bound once; rebinding returns
// ErrDuplicateTool and the caller counts the operation as skipped.
func (r *Registry) Put(name string, entry Entry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[name]; exists {
		return ErrDuplicateTool
	}
	r.entries[name] = entry
	r.order = append(r.order, name)
	return nil
}

// Remove unbinds name. Used to roll back a Put when the transport-level
// registration fails afterwards.
func (r *Registry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[name]; !exists {
		return
	}
	delete(r.entries, name)
	for i, candidate := range r.order {
		if candidate == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// HasAPIPrefix reports whether any bound name starts with "<apiName>_".
// Incremental registration short-circuits on it.
func (r *Registry) HasAPIPrefix(apiName string) bool {
	prefix := apiName + "_"

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for name := range r.entries {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Snapshot returns the bound tools in registration order.
func (r *Registry) Snapshot() []NamedEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make([]NamedEntry, 0, len(r.order))
	for _, name := range r.order {
		snapshot = append(snapshot, NamedEntry{Name: name, Entry: r.entries[name]})
	}
	return snapshot
}

// Len returns the number of bound tools.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// ClearAll drops every binding. The cache is unaffected.
func (r *Registry) ClearAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = make(map[string]Entry)
	r.order = nil
}

// CacheGet returns the cached swagger document for apiName.
func (r *Registry) CacheGet(apiName string) (json.RawMessage, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	doc, ok := r.cache[apiName]
	return doc, ok
}

// CachePut stores the swagger document for apiName.
func (r *Registry) CachePut(apiName string, doc json.RawMessage) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache[apiName] = doc
}

// CacheClear drops all cached documents so the next scan re-fetches them.
func (r *Registry) CacheClear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache = make(map[string]json.RawMessage)
}
