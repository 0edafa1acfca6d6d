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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// roundtripNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	roundtripNamespace = "roundtrip"

	resultLabelName   = "result"
	phaseLabelName    = "phase"
	roleLabelName     = "role"
	providerLabelName = "provider"
	formatLabelName   = "format"

	SuccessLabel = "success"
	FailLabel    = "fail"

	PhaseConfigureRead  = "configure_read"
	PhaseCreateWriter   = "create_marshaller"
	PhaseWrite          = "write"
	PhaseFinishWriter   = "finish_marshaller"
	PhaseConfigureWrite = "configure_write"
	PhaseCreateReader   = "create_unmarshaller"
	PhaseRead           = "read"
	PhaseFinishReader   = "finish_unmarshaller"
	PhaseNone           = ""

	RoleMarshaller   = "marshaller"
	RoleUnmarshaller = "unmarshaller"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// [0.05 0.1 0.2 0.4 ... 409.6 819.2]
	buckets = prometheus.ExponentialBuckets(0.05, 2, 15)

	// sizeBuckets 为单次往返产生字节数的桶划分，单位为字节。
	sizeBuckets = prometheus.ExponentialBuckets(16, 4, 10)

	RoundTripTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: roundtripNamespace,
			Name:      "total",
			Help:      "number of round trips, labelled by result and the failing phase",
		}, []string{resultLabelName, phaseLabelName})

	RoundTripLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: roundtripNamespace,
			Name:      "latency",
			Help:      "latency of one write-then-read round trip in milliseconds",
			Buckets:   buckets,
		})

	RoundTripBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: roundtripNamespace,
			Name:      "stream_bytes",
			Help:      "size of the stream captured between write and read phase",
			Buckets:   sizeBuckets,
		})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer，未调用 Register 时返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(RoundTripTotal)
		r.MustRegister(RoundTripLatency)
		r.MustRegister(RoundTripBytes)
		registerSessionMetrics(r)
		metricRegisterer = r
	})
}
