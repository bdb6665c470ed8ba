package api

import (
	"github.com/BaSui01/llmrelay/backend"
	"github.com/BaSui01/llmrelay/relay"
	"github.com/BaSui01/llmrelay/threads"
)

// =============================================================================
// 生成请求
// =============================================================================

// GenerateRequest 是 /api/generate、/api/generate_raw、/api/send_message 的请求体。
// @Description 生成请求结构
type GenerateRequest = relay.GenerationRequest

// =============================================================================
// 模型管理类型
// =============================================================================

// ModelRequest 是 check_model 与 install_model 的请求体。
// @Description 模型名请求
type ModelRequest struct {
	// 模型名称（例如 deepseek-r1:1.5b）
	Model string `json:"model" example:"deepseek-r1:1.5b" binding:"required"`
}

// CheckModelResponse 模型存在性检查结果。
// 后端不可查询时 Error 非空，Exists 为 false。
type CheckModelResponse struct {
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// InstallModelResponse 模型安装已启动。
type InstallModelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ModelStatusListResponse check_all_models 的响应。
type ModelStatusListResponse struct {
	Models []backend.ModelStatus `json:"models"`
}

// CatalogResponse list_small_models 的响应。
type CatalogResponse struct {
	Models []backend.CatalogModel `json:"models"`
}

// DetailResponse 是前端沿用的 {"detail": "..."} 错误体。
type DetailResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// 会话类型
// =============================================================================

// SaveThreadRequest 是 /api/save_thread 的请求体。
type SaveThreadRequest = threads.SaveRequest

// ThreadResponse 会话保存、读取与删除的统一响应。
type ThreadResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	ThreadID string          `json:"thread_id,omitempty"`
	Thread   *threads.Thread `json:"thread,omitempty"`
}

// ThreadListResponse 是 /api/get_threads 的响应，直接是数组。
type ThreadListResponse = []threads.Summary
