package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/llmrelay/api"
	"github.com/BaSui01/llmrelay/backend"
	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 模型管理 Handler
// =============================================================================

const msgFetchModelsFailed = "Failed to fetch models from Ollama"

// Inventory 查询后端已安装模型，*backend.Client 是默认实现
type Inventory interface {
	Installed(ctx context.Context) (map[string]bool, error)
}

// ModelInstaller 启动模型拉取，*backend.Installer 是默认实现
type ModelInstaller interface {
	Install(ctx context.Context, model string) error
}

// ModelHandler 处理模型检查、安装与目录接口
type ModelHandler struct {
	inventory Inventory
	installer ModelInstaller
	available []string
	catalog   []config.CatalogEntry
	logger    *zap.Logger
}

// NewModelHandler 创建模型处理器。available 与 catalog 在启动时确定，之后只读。
func NewModelHandler(inventory Inventory, installer ModelInstaller, available []string, catalog []config.CatalogEntry, logger *zap.Logger) *ModelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelHandler{
		inventory: inventory,
		installer: installer,
		available: append([]string(nil), available...),
		catalog:   append([]config.CatalogEntry(nil), catalog...),
		logger:    logger.With(zap.String("handler", "models")),
	}
}

// HandleCheckModel 处理 POST /api/check_model
// @Summary 检查模型是否已安装
// @Tags 模型
// @Accept json
// @Produce json
// @Param request body api.ModelRequest true "模型"
// @Success 200 {object} api.CheckModelResponse
// @Router /api/check_model [post]
func (h *ModelHandler) HandleCheckModel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeModel(w, r)
	if !ok {
		return
	}

	installed, err := h.inventory.Installed(r.Context())
	if err != nil {
		var se *backend.StatusError
		msg := err.Error()
		if errors.As(err, &se) {
			msg = fmt.Sprintf("Failed to check models: %d", se.StatusCode)
		}
		h.logger.Warn("check model failed", zap.String("model", req.Model), zap.Error(err))
		WriteJSON(w, http.StatusOK, api.CheckModelResponse{Exists: false, Error: msg})
		return
	}

	WriteJSON(w, http.StatusOK, api.CheckModelResponse{Exists: installed[req.Model]})
}

// HandleInstallModel 处理 POST /api/install_model
// @Summary 安装模型
// @Description 在后台启动 pull 进程，观察期内失败则返回错误
// @Tags 模型
// @Accept json
// @Produce json
// @Param request body api.ModelRequest true "模型"
// @Success 200 {object} api.InstallModelResponse
// @Failure 500 {object} api.DetailResponse
// @Failure 503 {object} api.DetailResponse
// @Router /api/install_model [post]
func (h *ModelHandler) HandleInstallModel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeModel(w, r)
	if !ok {
		return
	}

	if err := h.installer.Install(r.Context(), req.Model); err != nil {
		status := http.StatusInternalServerError
		if typedErr, ok := types.AsError(err); ok && typedErr.HTTPStatus != 0 {
			status = typedErr.HTTPStatus
		}
		WriteJSON(w, status, api.DetailResponse{Detail: detailMessage(err)})
		return
	}

	WriteJSON(w, http.StatusOK, api.InstallModelResponse{
		Success: true,
		Message: fmt.Sprintf("Model %s installation started", req.Model),
	})
}

// HandleCheckAllModels 处理 GET /api/check_all_models
// @Summary 可选模型的安装状态
// @Tags 模型
// @Produce json
// @Success 200 {object} api.ModelStatusListResponse
// @Failure 500 {object} api.DetailResponse
// @Router /api/check_all_models [get]
func (h *ModelHandler) HandleCheckAllModels(w http.ResponseWriter, r *http.Request) {
	installed, err := h.inventory.Installed(r.Context())
	if err != nil {
		h.logger.Warn("fetch models failed", zap.Error(err))
		detail := err.Error()
		var se *backend.StatusError
		if errors.As(err, &se) {
			detail = msgFetchModelsFailed
		}
		WriteJSON(w, http.StatusInternalServerError, api.DetailResponse{Detail: detail})
		return
	}

	WriteJSON(w, http.StatusOK, api.ModelStatusListResponse{
		Models: backend.Statuses(h.available, installed),
	})
}

// HandleListSmallModels 处理 GET /api/list_small_models。
// 后端不可达时仍返回目录，只是不带安装状态。
// @Summary 推荐的小模型
// @Tags 模型
// @Produce json
// @Success 200 {object} api.CatalogResponse
// @Router /api/list_small_models [get]
func (h *ModelHandler) HandleListSmallModels(w http.ResponseWriter, r *http.Request) {
	installed, err := h.inventory.Installed(r.Context())
	if err != nil {
		h.logger.Debug("catalog without install status", zap.Error(err))
		installed = nil
	}

	WriteJSON(w, http.StatusOK, api.CatalogResponse{
		Models: backend.Catalog(h.catalog, installed),
	})
}

func (h *ModelHandler) decodeModel(w http.ResponseWriter, r *http.Request) (api.ModelRequest, bool) {
	var req api.ModelRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return req, false
	}
	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		WriteError(w, r, types.NewInvalidRequestError("model is required"), h.logger)
		return req, false
	}
	return req, true
}

// detailMessage 取结构化错误的 Message，其余错误取 Error()
func detailMessage(err error) string {
	if typedErr, ok := types.AsError(err); ok {
		return typedErr.Message
	}
	return err.Error()
}
