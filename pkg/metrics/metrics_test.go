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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 计数器必须携带 _total 后缀，与 Prometheus 命名约定保持一致。
func TestClientCounterNames(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry)

	// Vec 类型需要至少一个子指标才会出现在 Gather 结果中。
	ClientOpsSent.WithLabelValues("eval").Inc()
	ClientResponses.WithLabelValues("session").Inc()
	ClientSendErrors.Inc()
	ClientRecvErrors.Inc()
	ClientDisconnects.Inc()

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, name := range []string{
		"tutkain_client_ops_sent_total",
		"tutkain_client_send_errors_total",
		"tutkain_client_responses_total",
		"tutkain_client_recv_errors_total",
		"tutkain_client_disconnects_total",
	} {
		assert.True(t, names[name], "missing counter %s", name)
	}
}
