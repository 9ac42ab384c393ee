package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// StorageConfig selects the entity store: "postgres" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// RedisConfig enables the availability cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AMQPConfig enables broker-backed notifications when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// EvidenceConfig stores gate photos in S3 when Bucket is set, and under Dir
// otherwise.
type EvidenceConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Dir             string `mapstructure:"dir"`
}

type GatewayConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	PartnerCode      string        `mapstructure:"partner_code"`
	AccessKey        string        `mapstructure:"access_key"`
	SecretKey        string        `mapstructure:"secret_key"`
	RedirectURL      string        `mapstructure:"redirect_url"`
	IPNURL           string        `mapstructure:"ipn_url"`
	Method           string        `mapstructure:"method"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type AuthConfig struct {
	Secret        string        `mapstructure:"secret"`
	Issuer        string        `mapstructure:"issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	FaceThreshold float64       `mapstructure:"face_threshold"`
}

type SweeperConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Evidence EvidenceConfig `mapstructure:"evidence"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Log      LogConfig      `mapstructure:"log"`
	Timezone string         `mapstructure:"timezone"`
	Timeout  time.Duration  `mapstructure:"timeout"`
}

// Location resolves Timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// envKeys are bound explicitly so AutomaticEnv can fill keys that are absent
// from config.yaml.
var envKeys = []string{
	"server.address", "server.shutdown_timeout",
	"postgres.host", "postgres.port", "postgres.user", "postgres.password", "postgres.dbname", "postgres.sslmode",
	"storage.driver",
	"redis.addr", "redis.password", "redis.db", "redis.ttl",
	"amqp.url", "amqp.exchange",
	"evidence.bucket", "evidence.region", "evidence.endpoint", "evidence.access_key_id",
	"evidence.secret_access_key", "evidence.use_path_style", "evidence.dir",
	"gateway.endpoint", "gateway.partner_code", "gateway.access_key", "gateway.secret_key",
	"gateway.redirect_url", "gateway.ipn_url", "gateway.method", "gateway.timeout",
	"gateway.failure_threshold", "gateway.open_timeout",
	"auth.secret", "auth.issuer", "auth.token_ttl", "auth.face_threshold",
	"sweeper.schedule", "sweeper.timeout",
	"log.level", "log.format",
	"timezone", "timeout",
}

// LoadConfig reads .env, then config.yaml from path (or the working
// directory), then environment variables such as POSTGRES_HOST.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 30 * time.Second
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "parking.notifications"
	}
	if c.Evidence.Region == "" {
		c.Evidence.Region = "us-east-1"
	}
	if c.Evidence.Dir == "" {
		c.Evidence.Dir = "./evidence"
	}
	if c.Gateway.Method == "" {
		c.Gateway.Method = "MoMo"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 15 * time.Second
	}
	if c.Gateway.FailureThreshold == 0 {
		c.Gateway.FailureThreshold = 5
	}
	if c.Gateway.OpenTimeout == 0 {
		c.Gateway.OpenTimeout = 30 * time.Second
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "parking"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.FaceThreshold == 0 {
		c.Auth.FaceThreshold = 0.6
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "*/5 * * * *"
	}
	if c.Sweeper.Timeout == 0 {
		c.Sweeper.Timeout = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}
