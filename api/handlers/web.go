package handlers

import (
	"bytes"
	"net/http"

	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/web"
	"go.uber.org/zap"
)

// WebHandler 渲染聊天页面并提供静态资源
type WebHandler struct {
	index  *web.Index
	page   web.Page
	static http.Handler
	logger *zap.Logger
}

// NewWebHandler 解析首页模板并准备静态资源
func NewWebHandler(cfg config.WebConfig, models config.ModelsConfig, logger *zap.Logger) (*WebHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	index, err := web.ParseIndex()
	if err != nil {
		return nil, err
	}
	fsys, err := web.Static(cfg.StaticDir)
	if err != nil {
		return nil, err
	}
	page := web.Page{
		Title:        cfg.Title,
		Models:       append([]string(nil), models.Available...),
		DefaultModel: models.Default,
	}
	return &WebHandler{
		index:  index,
		page:   page,
		static: http.StripPrefix("/static/", http.FileServerFS(fsys)),
		logger: logger.With(zap.String("handler", "web")),
	}, nil
}

// HandleIndex 处理 GET /，同时兜底所有未注册的路径
func (h *WebHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := h.index.Render(&buf, h.page); err != nil {
		h.logger.Error("render index failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Static 返回 /static/ 前缀下的文件服务
func (h *WebHandler) Static() http.Handler {
	return h.static
}
