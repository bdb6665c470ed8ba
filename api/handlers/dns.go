package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/llmrelay/internal/netdiag"
	"go.uber.org/zap"
)

// DNSProber 执行网络诊断，*netdiag.Prober 是默认实现
type DNSProber interface {
	Check(ctx context.Context) netdiag.Report
}

// DNSHandler 处理 GET /api/check_dns
type DNSHandler struct {
	prober DNSProber
	logger *zap.Logger
}

// NewDNSHandler 创建网络诊断处理器
func NewDNSHandler(prober DNSProber, logger *zap.Logger) *DNSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DNSHandler{prober: prober, logger: logger.With(zap.String("handler", "dns"))}
}

// HandleCheckDNS 解析关键主机并报告系统 DNS 配置
// @Summary 网络诊断
// @Tags 诊断
// @Produce json
// @Success 200 {object} netdiag.Report
// @Router /api/check_dns [get]
func (h *DNSHandler) HandleCheckDNS(w http.ResponseWriter, r *http.Request) {
	report := h.prober.Check(r.Context())

	failed := 0
	for _, res := range report.DNSChecks {
		if !res.Resolved {
			failed++
		}
	}
	if failed > 0 {
		h.logger.Warn("dns check found unresolved hosts",
			zap.Int("failed", failed),
			zap.Int("total", len(report.DNSChecks)),
		)
	}

	WriteJSON(w, http.StatusOK, report)
}
