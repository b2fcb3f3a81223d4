package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Meeting is a durable meeting seeded into the store at startup.
type Meeting struct {
	Ref      string `mapstructure:"ref"`
	Title    string `mapstructure:"title"`
	Password string `mapstructure:"password"`
	Capacity int    `mapstructure:"capacity"`
	Locked   bool   `mapstructure:"locked"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`

	AuthTimeout      time.Duration `mapstructure:"auth_timeout"`
	JoinCheckTimeout time.Duration `mapstructure:"join_check_timeout"`
	HandoffTimeout   time.Duration `mapstructure:"handoff_timeout"`

	RoomCapacity     int           `mapstructure:"room_capacity"`
	ChatHistoryLimit int           `mapstructure:"chat_history_limit"`
	ChatMaxLen       int           `mapstructure:"chat_max_len"`
	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`

	Database   Database    `mapstructure:"database"`
	Redis      Redis       `mapstructure:"redis"`
	Meetings   []Meeting   `mapstructure:"meetings"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	// Room for a maximal SDP plus its JSON envelope and escaping.
	v.SetDefault("read_limit", 131072)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("secret", "")
	v.SetDefault("auth_timeout", "3s")
	v.SetDefault("join_check_timeout", "3s")
	v.SetDefault("handoff_timeout", "5s")
	v.SetDefault("room_capacity", 6)
	v.SetDefault("chat_history_limit", 100)
	v.SetDefault("chat_max_len", 500)
	v.SetDefault("chat_rate_limit", 5)
	v.SetDefault("chat_rate_interval", "3s")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// MEET_* environment variables override both, e.g. MEET_REDIS_ADDR.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return errors.New("config: secret is required to verify identity tokens")
	}
	if c.RoomCapacity <= 0 {
		return fmt.Errorf("config: room_capacity must be positive, got %d", c.RoomCapacity)
	}
	if c.Backpressure != "kick" && c.Backpressure != "drop" {
		return fmt.Errorf("config: backpressure must be kick or drop, got %q", c.Backpressure)
	}
	for _, m := range c.Meetings {
		if m.Ref == "" {
			return errors.New("config: every meeting needs a ref")
		}
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("config: ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	return nil
}
