// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packwright/packwright/common"
)

var (
	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "git_hash", "build_time"},
	)

	framesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "frames_parsed_total",
			Help:      "Frames dissected, by terminal status",
		},
		[]string{"status"},
	)

	loadDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "load_duration_seconds",
			Help:      "Wall time spent loading and dissecting the last capture file",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "active_connections",
			Help:      "TCP connections tracked in the loaded capture",
		},
	)

	reassemblyDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "reassembly_pending_drops_total",
			Help:      "Connections marked lossy after out-of-order pending-map overflow drops",
		},
	)

	concurrencyLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "worker_concurrency_limit",
			Help:      "Concurrency value derived from NumCPU; dissection itself runs sequentially",
		},
	)

	processStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "process_start_time_seconds",
			Help:      "Unix timestamp at which this process started",
		},
	)
)

func recordBuildInfo(info common.BuildInfo) {
	buildInfo.WithLabelValues(info.Version, info.GitHash, info.Time).Set(1)
	concurrencyLimit.Set(float64(common.Concurrency()))
	processStartTime.Set(float64(common.Started()))
}
