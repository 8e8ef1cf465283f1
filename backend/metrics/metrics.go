// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics holds the Prometheus collectors for the realtime server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memories"

type Metrics struct {
	connections      prometheus.Gauge
	events           *prometheus.CounterVec
	broadcasts       prometheus.Counter
	slowConsumers    prometheus.Counter
	sideEffects      *prometheus.CounterVec
	capsulesUnlocked prometheus.Counter
	sweepFailures    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_total",
			Help:      "Inbound websocket events by name.",
		}, []string{"event"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_broadcasts_total",
			Help:      "Room fan-outs delivered by this instance.",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_consumers_total",
			Help:      "Connections closed because their send queue was full.",
		}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_side_effects_total",
			Help:      "Bot side effects by branch and outcome.",
		}, []string{"branch", "outcome"}),
		capsulesUnlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capsules_unlocked_total",
			Help:      "Capsules transitioned to unlocked.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_sweep_failures_total",
			Help:      "Per-capsule failures during the unlock sweep.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.connections, m.events, m.broadcasts, m.slowConsumers,
			m.sideEffects, m.capsulesUnlocked, m.sweepFailures)
	}
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Event(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Broadcast() {
	if m != nil {
		m.broadcasts.Inc()
	}
}

func (m *Metrics) SlowConsumer() {
	if m != nil {
		m.slowConsumers.Inc()
	}
}

func (m *Metrics) SideEffect(branch, outcome string) {
	if m != nil {
		m.sideEffects.WithLabelValues(branch, outcome).Inc()
	}
}

func (m *Metrics) CapsulesUnlocked(n int) {
	if m != nil && n > 0 {
		m.capsulesUnlocked.Add(float64(n))
	}
}

func (m *Metrics) SweepFailures(n int) {
	if m != nil && n > 0 {
		m.sweepFailures.Add(float64(n))
	}
}
