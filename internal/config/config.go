package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义中继 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "127.0.0.1"
	Port int    // 监听端口，默认 8787
}

// RelayConfig 定义页面侧访问特权中继的方式
type RelayConfig struct {
	Address        string        // 中继地址，留空表示使用进程内通道
	Transport      string        // 传输方式: "http" 或 "ws"
	RequestTimeout time.Duration // 单次请求超时，0 表示依赖底层传输
	FetchTimeout   time.Duration // 中继抓取附件的 HTTP 超时
	UserAgent      string        // 中继抓取时使用的 User-Agent
	PageWorld      string        // SDK 引导时注入的页面脚本，留空表示不支持注入
}

// ResolverConfig 定义下载地址解析的时间参数
type ResolverConfig struct {
	SettleDelay time.Duration // 模拟交互后的等待时间，默认 200ms
	RetryDelay  time.Duration // 访问器重试间隔，默认 300ms
	MaxRetries  int           // 访问器返回空值时的重试次数，默认 1
	BaseURL     string        // 解析相对链接时使用的页面地址
}

// AssemblerConfig 定义 ZIP 组装参数
type AssemblerConfig struct {
	CompressionLevel int           // DEFLATE 压缩级别，默认 6
	RevokeDelay      time.Duration // 保存后释放对象引用的延迟，默认 1s
}

// DownloadConfig 定义保存目录与中继后台下载参数
type DownloadConfig struct {
	Dir       string        // 下载保存目录
	Workers   int           // 后台下载协程数
	QueueSize int           // 后台下载队列长度
	StoreType string        // 下载记录存储: "memory" 或 "redis"
	RecordTTL time.Duration // 下载记录保留时间
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// RateLimitConfig 定义中继入口限流，RPS 为 0 表示不限流
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
	Suppress    bool   // 是否过滤宿主 SDK 产生的噪声日志
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Relay     RelayConfig
	Resolver  ResolverConfig
	Assembler AssemblerConfig
	Download  DownloadConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Redis     RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: GMAILBULKER_
// 例如: GMAILBULKER_SERVER_PORT, GMAILBULKER_RELAY_ADDRESS
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("gmailbulker")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("relay.address", "")
	v.SetDefault("relay.transport", "http")
	v.SetDefault("relay.request_timeout", "0s")
	v.SetDefault("relay.fetch_timeout", "0s")
	v.SetDefault("relay.user_agent", "gmail-bulker/1.0.5")
	v.SetDefault("relay.page_world", "pageWorld.js")
	v.SetDefault("resolver.settle_delay", "200ms")
	v.SetDefault("resolver.retry_delay", "300ms")
	v.SetDefault("resolver.max_retries", 1)
	v.SetDefault("resolver.base_url", "https://mail.google.com/mail/u/0/")
	v.SetDefault("assembler.compression_level", 6)
	v.SetDefault("assembler.revoke_delay", "1s")
	v.SetDefault("download.dir", "./downloads")
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.queue_size", 64)
	v.SetDefault("download.store_type", "memory")
	v.SetDefault("download.record_ttl", "1h")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.suppress", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"relay.request_timeout",
		"relay.fetch_timeout",
		"resolver.settle_delay",
		"resolver.retry_delay",
		"assembler.revoke_delay",
		"download.record_ttl",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = d
	}

	transport := strings.ToLower(strings.TrimSpace(v.GetString("relay.transport")))
	if transport != "http" && transport != "ws" {
		return nil, fmt.Errorf("relay.transport must be \"http\" or \"ws\", got %q", transport)
	}

	level := v.GetInt("assembler.compression_level")
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("assembler.compression_level must be within 0..9, got %d", level)
	}

	storeType := strings.ToLower(v.GetString("download.store_type"))
	if storeType != "memory" && storeType != "redis" {
		return nil, fmt.Errorf("download.store_type must be \"memory\" or \"redis\", got %q", storeType)
	}

	maxRetries := v.GetInt("resolver.max_retries")
	if maxRetries <= 0 {
		maxRetries = 1
	}

	workers := v.GetInt("download.workers")
	if workers <= 0 {
		workers = 4
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Relay: RelayConfig{
			Address:        strings.TrimRight(v.GetString("relay.address"), "/"),
			Transport:      transport,
			RequestTimeout: durations["relay.request_timeout"],
			FetchTimeout:   durations["relay.fetch_timeout"],
			UserAgent:      v.GetString("relay.user_agent"),
			PageWorld:      v.GetString("relay.page_world"),
		},
		Resolver: ResolverConfig{
			SettleDelay: durations["resolver.settle_delay"],
			RetryDelay:  durations["resolver.retry_delay"],
			MaxRetries:  maxRetries,
			BaseURL:     v.GetString("resolver.base_url"),
		},
		Assembler: AssemblerConfig{
			CompressionLevel: level,
			RevokeDelay:      durations["assembler.revoke_delay"],
		},
		Download: DownloadConfig{
			Dir:       v.GetString("download.dir"),
			Workers:   workers,
			QueueSize: v.GetInt("download.queue_size"),
			StoreType: storeType,
			RecordTTL: durations["download.record_ttl"],
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rate_limit.rps"),
			Burst: v.GetInt("rate_limit.burst"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			Suppress:    v.GetBool("log.suppress"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// Addr 返回服务器监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
