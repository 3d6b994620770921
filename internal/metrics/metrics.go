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

// Package metrics provides the emitter abstraction the ARM pipeline and the
// tool binder report through. The prometheus implementation is only wired
// when the process is started with a metrics listener address; everything
// else uses the no-op emitter.
package metrics

import (
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names emitted by this process.
const (
	ARMRequestsTotal     = "connections_mcp_arm_requests_total"
	ARMRetriesTotal      = "connections_mcp_arm_retries_total"
	ToolsRegisteredTotal = "connections_mcp_tools_registered_total"
	ToolInvocationsTotal = "connections_mcp_tool_invocations_total"
)

// Emitter emits different types of metrics.
type Emitter interface {
	AddCounter(metricName string, value float64, labels map[string]string)
	EmitGauge(metricName string, value float64, labels map[string]string)
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) AddCounter(string, float64, map[string]string) {}
func (Noop) EmitGauge(string, float64, map[string]string)  {}

// PrometheusEmitter registers gauge and counter vectors lazily on first use
// so callers do not have to declare metric names up front.
type PrometheusEmitter struct {
	mutex    sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
	registry prometheus.Registerer
}

func NewPrometheusEmitter(r prometheus.Registerer) *PrometheusEmitter {
	return &PrometheusEmitter{
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
		registry: r,
	}
}

func (pe *PrometheusEmitter) EmitGauge(name string, value float64, labels map[string]string) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()
	vec, exists := pe.gauges[name]
	if !exists {
		labelKeys := slices.Collect(maps.Keys(labels))
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys)
		pe.registry.MustRegister(vec)
		pe.gauges[name] = vec
	}
	vec.With(labels).Set(value)
}

func (pe *PrometheusEmitter) AddCounter(name string, value float64, labels map[string]string) {
	pe.mutex.Lock()
	defer pe.mutex.Unlock()
	vec, exists := pe.counters[name]
	if !exists {
		labelKeys := slices.Collect(maps.Keys(labels))
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys)
		pe.registry.MustRegister(vec)
		pe.counters[name] = vec
	}
	vec.With(labels).Add(value)
}
