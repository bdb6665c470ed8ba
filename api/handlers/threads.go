package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/llmrelay/api"
	"github.com/BaSui01/llmrelay/threads"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 会话 Handler
// =============================================================================

// ThreadHandler 处理会话的保存、列出、读取与删除。
// 响应体沿用前端约定的 {"success": ..., "message": ...} 形式。
type ThreadHandler struct {
	store  threads.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewThreadHandler 创建会话处理器
func NewThreadHandler(store threads.Store, logger *zap.Logger) *ThreadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadHandler{
		store:  store,
		now:    time.Now,
		logger: logger.With(zap.String("handler", "threads")),
	}
}

// HandleSave 处理 POST /api/save_thread
// @Summary 保存会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body api.SaveThreadRequest true "会话内容"
// @Success 200 {object} api.ThreadResponse
// @Failure 500 {object} api.ThreadResponse
// @Router /api/save_thread [post]
func (h *ThreadHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req api.SaveThreadRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	thread, err := threads.NewThread(req, h.now())
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, api.ThreadResponse{
			Message: fmt.Sprintf("Failed to save thread: %v", err),
		})
		return
	}

	if err := h.store.Save(r.Context(), thread); err != nil {
		h.logger.Error("save thread failed", zap.String("thread_id", thread.ID), zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, api.ThreadResponse{
			Message: fmt.Sprintf("Failed to save thread: %v", err),
		})
		return
	}

	WriteJSON(w, http.StatusOK, api.ThreadResponse{
		Success:  true,
		Message:  fmt.Sprintf("Thread '%s' saved", thread.Name),
		ThreadID: thread.ID,
	})
}

// HandleList 处理 GET /api/get_threads。存储出错时返回空数组。
// @Summary 列出会话
// @Tags 会话
// @Produce json
// @Success 200 {array} threads.Summary
// @Router /api/get_threads [get]
func (h *ThreadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list threads failed", zap.Error(err))
		list = nil
	}
	if list == nil {
		list = api.ThreadListResponse{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// HandleGet 处理 GET /api/get_thread/{id}
// @Summary 读取会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} api.ThreadResponse
// @Failure 404 {object} api.ThreadResponse
// @Router /api/get_thread/{id} [get]
func (h *ThreadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	thread, err := h.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, threads.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, api.ThreadResponse{Message: "Thread not found"})
	case err != nil:
		h.logger.Error("load thread failed", zap.String("thread_id", id), zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, api.ThreadResponse{
			Message: fmt.Sprintf("Error loading thread: %v", err),
		})
	default:
		WriteJSON(w, http.StatusOK, api.ThreadResponse{Success: true, Thread: thread})
	}
}

// HandleDelete 处理 DELETE /api/delete_thread/{id}
// @Summary 删除会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} api.ThreadResponse
// @Failure 404 {object} api.ThreadResponse
// @Router /api/delete_thread/{id} [delete]
func (h *ThreadHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, threads.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, api.ThreadResponse{Message: "Thread not found"})
	case err != nil:
		h.logger.Error("delete thread failed", zap.String("thread_id", id), zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, api.ThreadResponse{
			Message: fmt.Sprintf("Error deleting thread: %v", err),
		})
	default:
		WriteJSON(w, http.StatusOK, api.ThreadResponse{
			Success:  true,
			Message:  "Thread deleted successfully",
			ThreadID: id,
		})
	}
}
