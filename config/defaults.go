// =============================================================================
// 📦 LLMRelay 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Backend:   DefaultBackendConfig(),
		Relay:     DefaultRelayConfig(),
		Models:    DefaultModelsConfig(),
		Catalog:   DefaultCatalog(),
		Threads:   DefaultThreadsConfig(),
		DNS:       DefaultDNSConfig(),
		Web:       DefaultWebConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:             8000,
		MetricsPort:          9091,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         0,
		ShutdownTimeout:      15 * time.Second,
		CORSAllowedOrigins:   []string{"*"},
		RateLimitRPS:         100,
		RateLimitBurst:       200,
		MaxConcurrentStreams: 0,
	}
}

// DefaultBackendConfig 返回默认后端配置（本地 Ollama）
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:        "http://localhost:11434",
		GeneratePath:   "/api/generate",
		TagsPath:       "/api/tags",
		Timeout:        0,
		RequestTimeout: 10 * time.Second,
		HealthTimeout:  5 * time.Second,
		PullCommand:    "ollama",
		InstallGrace:   time.Second,
	}
}

// DefaultRelayConfig 返回默认转发配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ChunkSize:        3,
		SlowDelay:        50 * time.Millisecond,
		MediumDelay:      20 * time.Millisecond,
		FastDelay:        10 * time.Millisecond,
		PassthroughDelay: 10 * time.Millisecond,
		BufferSize:       64,
	}
}

// DefaultModelsConfig 返回默认模型列表
func DefaultModelsConfig() ModelsConfig {
	return ModelsConfig{
		Available: []string{
			"deepseek-r1:1.5b",
			"deepseek-r1:8b",
			"deepseek-r1:14b",
			"deepseek-r1:32b",
			"deepseek-r1:70b",
		},
		Default: "deepseek-r1:1.5b",
	}
}

// DefaultCatalog 返回推荐的小模型
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "tinyllama:1.1b", Description: "Tiny LLaMA model, very fast and lightweight", Size: "1.1 GB"},
		{Name: "phi:mini", Description: "Small but powerful model from Microsoft", Size: "1.6 GB"},
		{Name: "gemma:2b", Description: "Google's lightweight model for everyday tasks", Size: "1.8 GB"},
		{Name: "mistral:7b-instruct-v0.2-q4_0", Description: "Quantized Mistral model with good performance", Size: "4.1 GB"},
		{Name: "nous-hermes2:yi-1.5-9b-q4_0", Description: "Fast instruction-tuned model with good performance", Size: "5.0 GB"},
	}
}

// DefaultThreadsConfig 返回默认会话存储配置
func DefaultThreadsConfig() ThreadsConfig {
	return ThreadsConfig{
		Driver:   "file",
		Dir:      "threads",
		Redis:    DefaultRedisConfig(),
		Database: DefaultDatabaseConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "llmrelay:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "llmrelay",
		Password:        "",
		Name:            "threads.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultDNSConfig 返回默认网络诊断配置
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Hosts: []string{
			"r2.cloudflarestorage.com",
			"huggingface.co",
			"google.com",
		},
		ResolvConf: "/etc/resolv.conf",
		Timeout:    3 * time.Second,
	}
}

// DefaultWebConfig 返回默认前端配置
func DefaultWebConfig() WebConfig {
	return WebConfig{
		StaticDir: "",
		Title:     "LLM Streaming Chat",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "llmrelay",
		SampleRate:     0.1,
		Insecure:       true,
		ExportInterval: 30 * time.Second,
	}
}
