/*
Copyright © 2018 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package cdfengine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spatialmodel/ncfile"
)

// engineMetrics records engine calls. A nil *engineMetrics records
// nothing.
type engineMetrics struct {
	calls    *prometheus.CounterVec
	sessions *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		return nil
	}
	return &engineMetrics{
		calls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ncfile_engine_calls_total",
				Help: "Total number of storage engine calls by operation and status code",
			},
			[]string{"op", "status"},
		),
		sessions: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ncfile_engine_sessions",
				Help: "Number of open dataset sessions by backing",
			},
			[]string{"backing"}, // "disk", "memory"
		),
	}
}

func (m *engineMetrics) observe(op string, st ncfile.Status) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, strconv.Itoa(int(st))).Inc()
}

func (m *engineMetrics) opened(backing string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(backing).Inc()
}

func (m *engineMetrics) closed(backing string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(backing).Dec()
}
