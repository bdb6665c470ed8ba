// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package main 提供 LLMRelay 服务端程序入口。

# 概述

cmd/llmrelay 是流式转发服务的可执行入口，提供 HTTP 服务、健康检查和版本查询子命令。
程序支持 YAML 配置文件与 LLMRELAY_* 环境变量覆盖、结构化日志（zap）、
Prometheus 指标以及可选的 OpenTelemetry 导出。

# 核心类型

  - Server: 主服务器，组装存储、后端客户端、转发管线与全部 handler
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health（--ready 检查就绪）
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger（同时记录 HTTP 指标）、CORS、RateLimiter（基于 IP）
  - 主端口接受 h2c，流式响应可以走明文 HTTP/2
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus，独立 Registry）
  - 优雅关闭：信号监听 → 停止限流清理 → 关闭 HTTP（等待流结束）→ 关闭 Metrics
    → 关闭会话存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
