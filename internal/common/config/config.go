package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `json:"server"`
	Backend    BackendConfig    `json:"backend"`
	Directions DirectionsConfig `json:"directions"`
	Tracking   TrackingConfig   `json:"tracking"`
	Redis      RedisConfig      `json:"redis"`
	Database   DatabaseConfig   `json:"database"`
	Consul     ConsulConfig     `json:"consul"`
	Jaeger     JaegerConfig     `json:"jaeger"`
	Auth       AuthConfig       `json:"auth"`
	Log        LogConfig        `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `json:"name"` // 服务名称
	Host string `json:"host"` // 服务地址
	Port int    `json:"port"` // HTTP端口
}

// BackendConfig 上游业务服务地址（订单 / 司机目录 / 活跃订单存储 / 实时通道）
type BackendConfig struct {
	OrderAPI       string `json:"order_api"`        // 订单服务，如 http://order-service:8081
	DriverAPI      string `json:"driver_api"`       // 司机目录服务
	ActiveOrderAPI string `json:"active_order_api"` // 活跃订单持久化服务
	RealtimeURL    string `json:"realtime_url"`     // 实时通道 websocket 地址，如 ws://realtime:8085/ws
	ServiceToken   string `json:"service_token"`    // 出站请求携带的服务级 Bearer token
	TimeoutSeconds int    `json:"timeout_seconds"`  // 出站 HTTP 超时（秒）
}

// Timeout 出站 HTTP 超时（带默认值）。
func (c BackendConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DirectionsConfig 第三方路径规划服务配置
type DirectionsConfig struct {
	BaseURL             string `json:"base_url"`              // 如 https://directions.example.com
	TravelMode          string `json:"travel_mode"`           // 默认 driving
	TimeoutSeconds      int    `json:"timeout_seconds"`       // 单次请求超时（秒）
	BreakerMaxFailures  int    `json:"breaker_max_failures"`  // 熔断阈值
	BreakerResetSeconds int    `json:"breaker_reset_seconds"` // 熔断恢复等待（秒）
}

// TrackingConfig 配送跟踪核心参数
type TrackingConfig struct {
	PollIntervalSeconds  int `json:"poll_interval_seconds"` // 司机位置轮询间隔，参考值 15s
	MaxPollFailures      int `json:"max_poll_failures"`     // 连续失败上限，超过后停止轮询
	CleanupDelaySeconds  int `json:"cleanup_delay_seconds"` // 订单完成后延迟多久清理活跃订单
	ActiveOrderTTLSecond int `json:"active_order_ttl"`      // 活跃订单记录 TTL（秒）
	ReconnectMinMillis   int `json:"reconnect_min_millis"`  // 实时通道重连最小退避
	ReconnectMaxMillis   int `json:"reconnect_max_millis"`  // 实时通道重连最大退避
}

// PollInterval 轮询间隔（带默认值）。
func (c TrackingConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MaxFailures 连续失败上限（带默认值）。
func (c TrackingConfig) MaxFailures() int {
	if c.MaxPollFailures <= 0 {
		return 5
	}
	return c.MaxPollFailures
}

// CleanupDelay 完成后清理延迟（带默认值）。
func (c TrackingConfig) CleanupDelay() time.Duration {
	if c.CleanupDelaySeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CleanupDelaySeconds) * time.Second
}

// ActiveOrderTTL 活跃订单 TTL（带默认值）。
func (c TrackingConfig) ActiveOrderTTL() time.Duration {
	if c.ActiveOrderTTLSecond <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ActiveOrderTTLSecond) * time.Second
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// AuthConfig 鉴权配置（HS256 JWT）
type AuthConfig struct {
	Enabled     bool     `json:"enabled"`
	JWTSecret   string   `json:"jwt_secret"`
	Issuer      string   `json:"issuer"`
	Audience    string   `json:"audience"`
	PublicPaths []string `json:"public_paths"` // 无需鉴权的路径前缀，如 /healthz
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "tracking-service",
			Host: "0.0.0.0",
			Port: 8080,
		},
		Backend: BackendConfig{
			OrderAPI:       "http://localhost:8081",
			DriverAPI:      "http://localhost:8082",
			ActiveOrderAPI: "http://localhost:8083",
			RealtimeURL:    "ws://localhost:8085/ws",
			TimeoutSeconds: 10,
		},
		Directions: DirectionsConfig{
			BaseURL:             "http://localhost:5000",
			TravelMode:          "driving",
			TimeoutSeconds:      10,
			BreakerMaxFailures:  5,
			BreakerResetSeconds: 30,
		},
		Tracking: TrackingConfig{
			PollIntervalSeconds:  15,
			MaxPollFailures:      5,
			CleanupDelaySeconds:  10,
			ActiveOrderTTLSecond: 86400,
			ReconnectMinMillis:   500,
			ReconnectMaxMillis:   15000,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "swiftcourier",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Auth: AuthConfig{
			Enabled:     false,
			Issuer:      "swiftcourier",
			Audience:    "swiftcourier",
			PublicPaths: []string{"/healthz"},
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
	}
}
