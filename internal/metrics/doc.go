// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、流式转发、
会话存储与模型安装四个维度。

# 核心类型

  - Collector：持有全部 Counter、Histogram、Gauge 向量指标。
    它同时实现 relay.Observer 与 backend.InstallRecorder，
    由 cmd/llmrelay 在启动时注入到对应组件。

# 主要能力

  - HTTP 指标：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 转发指标：进行中的流、按终态计数、输出单元与字节数、
    畸形行数、截断与准入拒绝次数。
  - 会话存储指标：按 operation/status 统计次数与耗时。
  - 模型安装指标：按结果统计安装尝试。
*/
package metrics
