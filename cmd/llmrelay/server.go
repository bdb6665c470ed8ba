package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/llmrelay/api/handlers"
	"github.com/BaSui01/llmrelay/backend"
	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/internal/metrics"
	"github.com/BaSui01/llmrelay/internal/netdiag"
	"github.com/BaSui01/llmrelay/internal/server"
	"github.com/BaSui01/llmrelay/internal/telemetry"
	"github.com/BaSui01/llmrelay/internal/tlsutil"
	"github.com/BaSui01/llmrelay/relay"
	"github.com/BaSui01/llmrelay/threads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 LLMRelay 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 组件
	registry  *prometheus.Registry
	collector *metrics.Collector
	store     threads.Store
	backend   *backend.Client
	installer *backend.Installer
	relay     *relay.Relay

	// Handlers
	healthHandler *handlers.HealthHandler
	relayHandler  *handlers.RelayHandler
	threadHandler *handlers.ThreadHandler
	modelHandler  *handlers.ModelHandler
	dnsHandler    *handlers.DNSHandler
	webHandler    *handlers.WebHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		otel:     otelProviders,
		registry: prometheus.NewRegistry(),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 指标
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWithRegisterer("llmrelay", s.registry, s.logger)

	// 2. 领域组件
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("thread_driver", s.cfg.Threads.Driver),
		zap.Bool("telemetry_enabled", s.otel.Enabled()),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 创建存储、后端客户端与转发管线
func (s *Server) initComponents() error {
	store, err := threads.NewStore(s.cfg.Threads, s.logger)
	if err != nil {
		return fmt.Errorf("thread store: %w", err)
	}
	s.store = threads.Instrument(store, s.collector)

	s.backend = backend.NewClientFromConfig(s.cfg.Backend, s.logger)
	s.installer = backend.NewInstaller(s.backend, backend.InstallerConfig{
		Command:       s.cfg.Backend.PullCommand,
		HealthTimeout: s.cfg.Backend.HealthTimeout,
		Grace:         s.cfg.Backend.InstallGrace,
	}, s.collector, s.logger)

	observers := []relay.Observer{s.collector}
	if meter := s.otel.StreamMeter(); meter != nil {
		observers = append(observers, meter)
	}

	upstream := relay.NewUpstreamClient(
		tlsutil.StreamingHTTPClient(s.cfg.Backend.RequestTimeout),
		relay.UpstreamOptions{
			URL:        backend.GenerateURL(s.cfg.Backend),
			Timeout:    s.cfg.Backend.Timeout,
			BufferSize: s.cfg.Relay.BufferSize,
		},
		s.logger,
	)
	s.relay = relay.New(upstream, relayOptions(s.cfg.Relay), s.logger,
		relay.WithObserver(relay.Observers(observers...)),
	)

	return nil
}

// relayOptions 把配置转换为转发管线参数
func relayOptions(cfg config.RelayConfig) relay.Options {
	return relay.Options{
		ChunkSize: cfg.ChunkSize,
		Profiles: relay.Profiles{
			Slow:   cfg.SlowDelay,
			Medium: cfg.MediumDelay,
			Fast:   cfg.FastDelay,
		},
		PassthroughDelay: cfg.PassthroughDelay,
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("backend", s.backend.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("threads", s.store.Ping))

	s.relayHandler = handlers.NewRelayHandler(s.relay, s.cfg.Server.MaxConcurrentStreams, s.collector, s.logger)
	s.threadHandler = handlers.NewThreadHandler(s.store, s.logger)
	s.modelHandler = handlers.NewModelHandler(s.backend, s.installer, s.cfg.Models.Available, s.cfg.Catalog, s.logger)
	s.dnsHandler = handlers.NewDNSHandler(netdiag.NewProber(s.cfg.DNS, s.logger), s.logger)

	webHandler, err := handlers.NewWebHandler(s.cfg.Web, s.cfg.Models, s.logger)
	if err != nil {
		return fmt.Errorf("web handler: %w", err)
	}
	s.webHandler = webHandler

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(BuildTime, GitCommit))

	// ========================================
	// 流式生成（方法检查在 handler 内完成）
	// ========================================
	mux.HandleFunc("/api/generate", s.relayHandler.HandleGenerate)
	mux.HandleFunc("/api/generate_raw", s.relayHandler.HandleGenerateRaw)
	mux.HandleFunc("/api/send_message", s.relayHandler.HandleSendMessage)

	// ========================================
	// 模型管理
	// ========================================
	mux.HandleFunc("POST /api/check_model", s.modelHandler.HandleCheckModel)
	mux.HandleFunc("POST /api/install_model", s.modelHandler.HandleInstallModel)
	mux.HandleFunc("GET /api/check_all_models", s.modelHandler.HandleCheckAllModels)
	mux.HandleFunc("GET /api/list_small_models", s.modelHandler.HandleListSmallModels)

	// ========================================
	// 会话
	// ========================================
	mux.HandleFunc("POST /api/save_thread", s.threadHandler.HandleSave)
	mux.HandleFunc("GET /api/get_threads", s.threadHandler.HandleList)
	mux.HandleFunc("GET /api/get_thread/{id}", s.threadHandler.HandleGet)
	mux.HandleFunc("DELETE /api/delete_thread/{id}", s.threadHandler.HandleDelete)

	// ========================================
	// 诊断与页面
	// ========================================
	mux.HandleFunc("GET /api/check_dns", s.dnsHandler.HandleCheckDNS)
	mux.Handle("GET /static/", s.webHandler.Static())
	mux.HandleFunc("/", s.webHandler.HandleIndex)

	return mux
}

// handler 构建中间件链
func (s *Server) handler(ctx context.Context) http.Handler {
	return Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger, s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		H2C:             true,
	}

	s.httpManager = server.NewManager(s.handler(rateLimiterCtx), serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry:          s.registry,
		EnableOpenMetrics: true,
	}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(context.Background())
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，等待进行中的流结束
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭会话存储
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Thread store close error", zap.Error(err))
		}
	}

	// 4. 刷新遥测数据（pull 进程不等待，下载在后台继续）
	if s.otel != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(flushCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
