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

package hardware

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/oconnor0/tutkain/pkg/log"
)

var (
	selfProcess     *process.Process
	selfProcessOnce sync.Once
)

// GetCPUNum 返回当前进程可用的逻辑 CPU 核数。
func GetCPUNum() int {
	return runtime.GOMAXPROCS(0)
}

// GetCPUUsage 返回系统 CPU 使用率，取值范围 [0, 100]。
func GetCPUUsage() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		log.Warn("failed to get cpu usage", zap.Error(err))
		return 0
	}
	if len(percents) != 1 {
		log.Warn("something wrong in cpu.Percent", zap.Int("len", len(percents)))
		return 0
	}
	return percents[0]
}

// GetMemoryCount 返回系统总内存，单位为字节。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}

func getSelfProcess() *process.Process {
	selfProcessOnce.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Warn("failed to open self process handle", zap.Error(err))
			return
		}
		selfProcess = p
	})
	return selfProcess
}

// GetUsedMemoryCount 返回当前进程占用的物理内存（RSS），单位为字节。
func GetUsedMemoryCount() uint64 {
	p := getSelfProcess()
	if p == nil {
		return 0
	}
	memInfo, err := p.MemoryInfo()
	if err != nil {
		log.Warn("failed to get process memory info", zap.Error(err))
		return 0
	}
	return memInfo.RSS
}

// GetProcessCPUPercent 返回当前进程的 CPU 使用率，取值范围 [0, 100*核数]。
func GetProcessCPUPercent() float64 {
	p := getSelfProcess()
	if p == nil {
		return 0
	}
	percent, err := p.CPUPercent()
	if err != nil {
		log.Warn("failed to get process cpu percent", zap.Error(err))
		return 0
	}
	return percent
}
