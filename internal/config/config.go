package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	System   SystemConfig   `mapstructure:"system"`
}

// ServerConfig 查询API服务配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	MaxLimit        int           `mapstructure:"max_limit"`
	// Live 是否开放 /ws/live 实时事件订阅
	Live bool `mapstructure:"live"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StreamConfig 上游事件流配置
type StreamConfig struct {
	Source          string        `mapstructure:"source"` // websocket, file
	URL             string        `mapstructure:"url"`
	File            string        `mapstructure:"file"`
	ContractAddress string        `mapstructure:"contract_address"`
	StartBlock      uint64        `mapstructure:"start_block"`
	CursorName      string        `mapstructure:"cursor_name"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	RetryTimes      int           `mapstructure:"retry_times"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay"`
}

// IndexerConfig 物化器配置
type IndexerConfig struct {
	// WarnAfterDeath 阵亡后仍收到战斗事件时是否告警
	WarnAfterDeath bool `mapstructure:"warn_after_death"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// CacheConfig 查询缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取配置但不修改全局实例（用于工具和测试）
func Load(configPath string) (*Config, error) {
	_, loaded, err := load(configPath)
	return loaded, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("SURVIVOR_INDEXER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	loaded := &Config{}
	if err := vp.Unmarshal(loaded); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, nil, err
	}
	return vp, loaded, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.default_limit", 20)
	v.SetDefault("server.max_limit", 101)
	v.SetDefault("server.live", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/survivor-indexer.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("stream.source", "websocket")
	v.SetDefault("stream.url", "ws://127.0.0.1:7171/v1/stream")
	v.SetDefault("stream.cursor_name", "survivor")
	v.SetDefault("stream.start_block", 0)
	v.SetDefault("stream.ping_interval", "30s")
	v.SetDefault("stream.pong_timeout", "60s")
	v.SetDefault("stream.dial_timeout", "10s")
	v.SetDefault("stream.retry_times", 8)
	v.SetDefault("stream.retry_interval", "500ms")
	v.SetDefault("stream.max_retry_delay", "30s")

	v.SetDefault("indexer.warn_after_death", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 4096)
	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "survivor-indexer.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Stream.Source {
	case "websocket":
		if c.Stream.URL == "" {
			return fmt.Errorf("stream.url 不能为空")
		}
	case "file":
		if c.Stream.File == "" {
			return fmt.Errorf("stream.file 不能为空")
		}
	default:
		return fmt.Errorf("不支持的事件源: %s", c.Stream.Source)
	}
	if c.Stream.ContractAddress == "" {
		return fmt.Errorf("stream.contract_address 不能为空")
	}
	if c.Server.MaxLimit <= 0 || c.Server.DefaultLimit <= 0 || c.Server.DefaultLimit > c.Server.MaxLimit {
		return fmt.Errorf("无效的分页限制: default=%d max=%d", c.Server.DefaultLimit, c.Server.MaxLimit)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
