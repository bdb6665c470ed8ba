// Package api 定义 LLMRelay HTTP 接口的请求与响应结构。
//
// # API Overview
//
// LLMRelay 提供以下接口:
//   - 流式生成：/api/generate（分块节奏文本）、/api/generate_raw（NDJSON 透传）、
//     /api/send_message（无节奏文本）
//   - 会话管理：/api/save_thread、/api/get_threads、/api/get_thread/{id}、
//     /api/delete_thread/{id}
//   - 模型管理：/api/check_model、/api/install_model、/api/check_all_models、
//     /api/list_small_models
//   - 网络诊断：/api/check_dns
//   - 运维：/health、/healthz、/ready、/readyz、/version
//
// 模型与会话接口的响应体保持前端依赖的旧格式，
// 参数校验失败与运维接口使用 handlers.Response 统一信封。
//
// # Base URL
//
//	http://localhost:8000
package api
