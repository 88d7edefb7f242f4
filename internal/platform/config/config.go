package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig   `mapstructure:"server"`
	Database     DatabaseConfig `mapstructure:"database"`
	Robots       []RobotConfig  `mapstructure:"robots"`
	DefaultRobot string         `mapstructure:"default_robot"`
	Queue        QueueConfig    `mapstructure:"queue"`
	JWT          JWTConfig      `mapstructure:"jwt"`
	Logging      LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	RobotCacheTTL  time.Duration `mapstructure:"robot_cache_ttl"` // zero disables caching
}

// RobotConfig is a robot declared in the config file rather than the registry.
type RobotConfig struct {
	Name    string `mapstructure:"name"`
	Webhook string `mapstructure:"webhook"`
	Secret  string `mapstructure:"secret"`
}

type QueueConfig struct {
	Backend string      `mapstructure:"backend"` // memory, redis
	Size    int         `mapstructure:"size"`
	Workers int         `mapstructure:"workers"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.url", "file:data/dingbot.db")
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.size", 256)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.key", "dingbot:notifications")
	v.SetDefault("jwt.access_token_ttl", 24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	for i := range config.Robots {
		config.Robots[i].Name = strings.TrimSpace(config.Robots[i].Name)
		config.Robots[i].Webhook = strings.TrimSpace(config.Robots[i].Webhook)
		config.Robots[i].Secret = strings.TrimSpace(config.Robots[i].Secret)
	}

	return &config, nil
}

// Load reads an optional .env file into the environment, then the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return decode(v)
}

// Watch calls onChange with the re-read config every time the file changes.
// Decode failures are passed to onError and the previous config stays in use.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

// Robot returns the statically configured robot with the given name.
func (c *Config) Robot(name string) (RobotConfig, bool) {
	for _, r := range c.Robots {
		if r.Name == name {
			return r, true
		}
	}
	return RobotConfig{}, false
}
