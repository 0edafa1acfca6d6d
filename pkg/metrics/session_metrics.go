// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sessionMetricSubsystem = "session"
)

var (
	SessionCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: roundtripNamespace,
		Subsystem: sessionMetricSubsystem,
		Name:      "created_total",
		Help:      "由 Provider 交付的会话数量",
	}, []string{roleLabelName, providerLabelName})

	SessionReused = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: roundtripNamespace,
		Subsystem: sessionMetricSubsystem,
		Name:      "reused_total",
		Help:      "从复用池中取出（而非新建）的会话数量",
	}, []string{roleLabelName})

	SessionFinishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: roundtripNamespace,
		Subsystem: sessionMetricSubsystem,
		Name:      "finish_failures_total",
		Help:      "Finish 阶段失败的会话数量",
	}, []string{roleLabelName})

	FrameBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: roundtripNamespace,
		Subsystem: sessionMetricSubsystem,
		Name:      "frame_bytes_total",
		Help:      "写出或读入的帧字节数（压缩后）",
	}, []string{roleLabelName, formatLabelName})
)

func registerSessionMetrics(r prometheus.Registerer) {
	r.MustRegister(SessionCreated)
	r.MustRegister(SessionReused)
	r.MustRegister(SessionFinishFailures)
	r.MustRegister(FrameBytes)
}
