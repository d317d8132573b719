package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultSessionSecret 仅供本地开发，release 模式下使用 cookie 会话时拒绝
const DefaultSessionSecret = "visual_experiment_secret_key_2024"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Redis     RedisConfig
	Archive   ArchiveConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	InitOnly   bool   `mapstructure:"-"` // 仅初始化存储后退出
	ConfigFile string `mapstructure:"-"` // 实际读取的配置文件路径，热加载使用
}

type ServerConfig struct {
	Port        string
	Mode        string
	StaticDir   string `mapstructure:"static_dir"`
	WatchConfig bool   `mapstructure:"watch_config"`
}

// DatabaseConfig Driver 取值 json / sqlite / mysql
type DatabaseConfig struct {
	Driver    string
	Path      string
	JSONPath  string `mapstructure:"json_path"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool `mapstructure:"parse_time"`
}

// SessionConfig Store 取值 memory / redis / cookie
type SessionConfig struct {
	Store       string
	CookieName  string `mapstructure:"cookie_name"`
	Secret      string `mapstructure:"secret"`
	MaxAgeHours int    `mapstructure:"max_age_hours"`

	// MaxAge 由 MaxAgeHours 换算
	MaxAge time.Duration `mapstructure:"-"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ArchiveConfig Type 取值 none / local / minio / oss
type ArchiveConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// DebugConfig PasswordHash 为空时 /debug 不做认证
type DebugConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.watch_config", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "experiment_data.db")
	v.SetDefault("database.json_path", "experiment_data.json")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.cookie_name", "experiment_session")
	v.SetDefault("session.secret", DefaultSessionSecret)
	v.SetDefault("session.max_age_hours", 24)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("archive.type", "none")
	v.SetDefault("archive.local_path", "archive")

	v.SetDefault("tracing.service_name", "visual-experiment")

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("debug.username", "admin")

	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// LoadConfig 从 path 目录读取 config.yaml，文件不存在时使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("VISUAL_EXPERIMENT")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// Session
	v.BindEnv("session.store", "SESSION_STORE")
	v.BindEnv("session.secret", "SESSION_SECRET")
	v.BindEnv("session.max_age_hours", "SESSION_MAX_AGE_HOURS")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "PORT")

	// Archive
	v.BindEnv("archive.type", "ARCHIVE_TYPE")
	v.BindEnv("archive.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("archive.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("archive.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("archive.minio_bucket", "MINIO_BUCKET")
	v.BindEnv("archive.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("archive.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("archive.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("archive.oss_bucket", "OSS_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Debug
	v.BindEnv("debug.password_hash", "DEBUG_PASSWORD_HASH")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Session.MaxAge = time.Duration(cfg.Session.MaxAgeHours) * time.Hour
	cfg.ConfigFile = v.ConfigFileUsed()
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = filepath.Join(path, "config.yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Archive.Type == "local" {
		if _, err := os.Stat(cfg.Archive.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Archive.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 检查取值范围，release 模式下要求足够强度的 cookie 签名密钥
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "json", "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Session.Store {
	case "memory", "redis", "cookie":
	default:
		return fmt.Errorf("unsupported session store %q", c.Session.Store)
	}

	switch c.Archive.Type {
	case "", "none", "local", "minio", "oss":
	default:
		return fmt.Errorf("unsupported archive type %q", c.Archive.Type)
	}

	if c.Server.Mode == "release" && c.Session.Store == "cookie" {
		if c.Session.Secret == DefaultSessionSecret {
			return errors.New("session secret is the built-in default, set session.secret or SESSION_SECRET in release mode")
		}
		if len(c.Session.Secret) < 32 {
			return fmt.Errorf("session secret is too short (%d chars), must be at least 32 characters in release mode", len(c.Session.Secret))
		}
	}

	if c.Session.MaxAgeHours <= 0 {
		return fmt.Errorf("session max_age_hours must be positive, got %d", c.Session.MaxAgeHours)
	}

	return nil
}
