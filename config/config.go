package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete service configuration.
type Config struct {
	HTTPAddr     string           `mapstructure:"http_addr"`
	SettingsFile string           `mapstructure:"settings_file"`
	Log          LogConfig        `mapstructure:"log"`
	Redis        RedisConfig      `mapstructure:"redis"`
	Engine       EngineConfig     `mapstructure:"engine"`
	Receiver     ReceiverConfig   `mapstructure:"receiver"`
	MQTT         MQTTConfig       `mapstructure:"mqtt"`
	NATS         NATSConfig       `mapstructure:"nats"`
	ClickHouse   ClickHouseConfig `mapstructure:"clickhouse"`
	Export       ExportConfig     `mapstructure:"export"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is "text" for colored console output or "json"
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type EngineConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// ReceiverConfig describes the TCP connection to the pulse sensor.
type ReceiverConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Address      string        `mapstructure:"address"`
	DeviceID     string        `mapstructure:"device_id"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	DataTimeout  time.Duration `mapstructure:"data_timeout"`
	RetryInitial time.Duration `mapstructure:"retry_initial"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ClickHouseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"db"`
	Username string `mapstructure:"user"`
	Password string `mapstructure:"pass"`
}

type ExportConfig struct {
	TextDir   string `mapstructure:"text_dir"`
	BinaryDir string `mapstructure:"binary_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("settings_file", "settings.yaml")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.snapshot_ttl", 5*time.Minute)

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_size", 10000)
	v.SetDefault("engine.tick_interval", time.Minute)

	v.SetDefault("receiver.enabled", true)
	v.SetDefault("receiver.address", "192.168.31.222:80")
	v.SetDefault("receiver.device_id", "esp32")
	v.SetDefault("receiver.dial_timeout", 5*time.Second)
	v.SetDefault("receiver.data_timeout", 10*time.Second)
	v.SetDefault("receiver.retry_initial", 5*time.Second)
	v.SetDefault("receiver.retry_max", 30*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "pulse-stream-processor")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "sensors/+/ppg")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "pulse")

	v.SetDefault("clickhouse.enabled", false)
	v.SetDefault("clickhouse.addr", "localhost:9000")
	v.SetDefault("clickhouse.db", "pulse")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.pass", "")

	v.SetDefault("export.text_dir", "Result")
	v.SetDefault("export.binary_dir", "Result_Binar")
}

// Load reads .env (if present), the environment and the settings file.
// Environment variables use the key path with dots replaced by underscores,
// e.g. REDIS_ADDR or RECEIVER_ADDRESS.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("settings_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Receiver.Enabled && c.Receiver.Address == "" {
		return errors.New("receiver.address is required when the receiver is enabled")
	}
	if c.Receiver.DataTimeout <= 0 {
		return errors.New("receiver.data_timeout must be positive")
	}
	if c.Engine.TickInterval <= 0 {
		return errors.New("engine.tick_interval must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when MQTT is enabled")
	}
	return nil
}

// SaveReceiverAddress stores the sensor address in the settings file, keeping
// any other settings already present there.
func SaveReceiverAddress(path, address string) error {
	if path == "" {
		return errors.New("settings file path is empty")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	v.Set("receiver.address", address)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", path, err)
	}
	slog.Info("receiver address saved", "path", path, "address", address)
	return nil
}

