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
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oconnor0/tutkain/pkg/util/hardware"
)

const (
	processMetricSubsystem = "process"
)

var (
	ProcessMetricsRegisterOnce sync.Once

	ProcessUsedMemory = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: tutkainNamespace,
		Subsystem: processMetricSubsystem,
		Name:      "used_memory_bytes",
		Help:      "当前进程占用的物理内存（RSS）",
	})

	ProcessCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: tutkainNamespace,
		Subsystem: processMetricSubsystem,
		Name:      "cpu_percent",
		Help:      "当前进程的 CPU 使用率",
	})

	ProcessGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: tutkainNamespace,
		Subsystem: processMetricSubsystem,
		Name:      "goroutines",
		Help:      "当前进程中 goroutine 的数量",
	})
)

// RegisterProcessMetrics 将进程相关的指标注册到 Prometheus Registry 中。
func RegisterProcessMetrics(registry *prometheus.Registry) {
	ProcessMetricsRegisterOnce.Do(func() {
		registry.MustRegister(ProcessUsedMemory)
		registry.MustRegister(ProcessCPUPercent)
		registry.MustRegister(ProcessGoroutines)
	})
}

// SampleProcessMetrics 采样一次进程指标。
func SampleProcessMetrics() {
	ProcessUsedMemory.Set(float64(hardware.GetUsedMemoryCount()))
	ProcessCPUPercent.Set(hardware.GetProcessCPUPercent())
	ProcessGoroutines.Set(float64(runtime.NumGoroutine()))
}

// StartProcessMetricsLoop 启动后台采样循环，直到 ctx 取消。
func StartProcessMetricsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SampleProcessMetrics()
		}
	}
}
