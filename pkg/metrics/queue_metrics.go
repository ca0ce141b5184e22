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
	queueMetricSubsystem = "queue"

	queueNameLabelName = "queue"
)

var (
	QueueMetricsRegisterOnce sync.Once

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: tutkainNamespace,
		Subsystem: queueMetricSubsystem,
		Name:      "depth",
		Help:      "当前队列中待消费元素的数量",
	}, []string{queueNameLabelName})

	QueueEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: tutkainNamespace,
		Subsystem: queueMetricSubsystem,
		Name:      "enqueued_total",
		Help:      "累计入队元素的数量",
	}, []string{queueNameLabelName})

	QueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: tutkainNamespace,
		Subsystem: queueMetricSubsystem,
		Name:      "dropped_total",
		Help:      "队列关闭时被丢弃元素的数量",
	}, []string{queueNameLabelName})
)

// RegisterQueueMetrics 将队列相关的指标注册到 Prometheus Registry 中。
func RegisterQueueMetrics(registry *prometheus.Registry) {
	QueueMetricsRegisterOnce.Do(func() {
		registry.MustRegister(QueueDepth)
		registry.MustRegister(QueueEnqueued)
		registry.MustRegister(QueueDropped)
	})
}
