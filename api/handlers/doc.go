// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 LLMRelay HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 LLMRelay 全部 HTTP 端点：三种生成流、会话管理、
模型查询与安装、DNS 诊断、Web 页面以及健康检查。所有 Handler 均遵循
标准 net/http 接口。

# 核心类型

  - RelayHandler: /api/generate、/api/generate_raw、/api/send_message
  - ThreadHandler: 会话保存、列表、读取与删除
  - ModelHandler: 模型检查、安装、安装状态与推荐小模型
  - DNSHandler: 名称解析诊断
  - WebHandler: 首页模板与静态资源
  - HealthHandler: 服务健康检查（/health, /healthz, /ready, /version）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求解码：DecodeJSONBody（10 MB 限制）
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 流式输出：响应头先行，之后每个分片立即 Flush
  - 并发流上限：超过上限的生成请求在写响应头之前返回 503
  - 可扩展健康检查：RegisterCheck 注册 PingCheck 等实现
*/
package handlers
