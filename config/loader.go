// =============================================================================
// 📦 LLMRelay 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("LLMRELAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 配置只在启动时加载一次，之后作为不可变值传给各组件。
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 LLMRelay 的完整配置结构
type Config struct {
	// Server HTTP 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Backend 本地模型服务配置
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Relay 流式转发配置
	Relay RelayConfig `yaml:"relay" env:"RELAY"`

	// Models 页面可选模型
	Models ModelsConfig `yaml:"models" env:"MODELS"`

	// Catalog 推荐的小模型（仅 YAML）
	Catalog []CatalogEntry `yaml:"catalog" env:"-"`

	// Threads 会话存储配置
	Threads ThreadsConfig `yaml:"threads" env:"THREADS"`

	// DNS 网络诊断配置
	DNS DNSConfig `yaml:"dns" env:"DNS"`

	// Web 静态资源配置
	Web WebConfig `yaml:"web" env:"WEB"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，0 表示不限制（流式响应可能持续很久）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个 IP 的限流速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 同时进行的流式转发上限，0 表示不限制
	MaxConcurrentStreams int `yaml:"max_concurrent_streams" env:"MAX_CONCURRENT_STREAMS"`
}

// BackendConfig 模型服务后端配置
type BackendConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 生成接口路径
	GeneratePath string `yaml:"generate_path" env:"GENERATE_PATH"`
	// 模型列表接口路径
	TagsPath string `yaml:"tags_path" env:"TAGS_PATH"`
	// 生成请求的整体截止时间，0 表示不限制
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 非流式请求（模型列表等）超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 安装前健康检查超时
	HealthTimeout time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	// 拉取模型的命令
	PullCommand string `yaml:"pull_command" env:"PULL_COMMAND"`
	// 拉取进程启动后的观察期
	InstallGrace time.Duration `yaml:"install_grace" env:"INSTALL_GRACE"`
}

// RelayConfig 流式转发配置
type RelayConfig struct {
	// 重新分块的目标大小（字符）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// slow 档位间隔
	SlowDelay time.Duration `yaml:"slow_delay" env:"SLOW_DELAY"`
	// medium 档位间隔（默认档位）
	MediumDelay time.Duration `yaml:"medium_delay" env:"MEDIUM_DELAY"`
	// fast 档位间隔
	FastDelay time.Duration `yaml:"fast_delay" env:"FAST_DELAY"`
	// 原样透传模式的固定间隔
	PassthroughDelay time.Duration `yaml:"passthrough_delay" env:"PASSTHROUGH_DELAY"`
	// 上游行缓冲通道容量
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// ModelsConfig 页面模型下拉列表
type ModelsConfig struct {
	// 可选模型
	Available []string `yaml:"available" env:"AVAILABLE"`
	// 默认选中的模型
	Default string `yaml:"default" env:"DEFAULT"`
}

// CatalogEntry 推荐模型条目
type CatalogEntry struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Size        string `yaml:"size" json:"size"`
}

// ThreadsConfig 会话存储配置
type ThreadsConfig struct {
	// 驱动类型: file, redis, sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// file 驱动的目录
	Dir string `yaml:"dir" env:"DIR"`
	// redis 驱动配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// sql 驱动配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// Key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DNSConfig 网络诊断配置
type DNSConfig struct {
	// 需要解析的主机
	Hosts []string `yaml:"hosts" env:"HOSTS"`
	// resolv.conf 路径
	ResolvConf string `yaml:"resolv_conf" env:"RESOLV_CONF"`
	// 单个主机解析超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// WebConfig 前端页面配置
type WebConfig struct {
	// 静态资源目录，为空时使用内嵌资源
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR"`
	// 页面标题
	Title string `yaml:"title" env:"TITLE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 以明文 gRPC 连接 collector；关闭时使用 TLS
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 指标导出间隔，0 使用 SDK 默认值
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LLMRELAY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 "20ms" 这类格式解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// ✅ 配置验证
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MaxConcurrentStreams < 0 {
		errs = append(errs, "max_concurrent_streams must not be negative")
	}

	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		errs = append(errs, "backend base_url is required")
	}

	if c.Relay.ChunkSize < 1 {
		errs = append(errs, "chunk_size must be positive")
	}
	if c.Relay.SlowDelay < 0 || c.Relay.MediumDelay < 0 || c.Relay.FastDelay < 0 || c.Relay.PassthroughDelay < 0 {
		errs = append(errs, "relay delays must not be negative")
	}
	if c.Relay.BufferSize < 0 {
		errs = append(errs, "buffer_size must not be negative")
	}

	if strings.TrimSpace(c.Models.Default) == "" {
		errs = append(errs, "default model is required")
	}

	switch c.Threads.Driver {
	case "file", "redis", "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown threads driver %q", c.Threads.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
