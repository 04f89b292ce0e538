package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	TransportStdio = "stdio"
	TransportHTTP  = "http"

	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

type Daraja struct {
	ConsumerKey    string `mapstructure:"consumer-key"`
	ConsumerSecret string `mapstructure:"consumer-secret"`
	ShortCode      string `mapstructure:"shortcode"`
	Passkey        string `mapstructure:"passkey"`
	Env            string `mapstructure:"env"`
	BaseURL        string `mapstructure:"base-url"`
	TimeoutMs      int    `mapstructure:"timeout-ms"`
}

// URL returns the API root. An explicit base-url wins over the environment switch.
func (d Daraja) URL() string {
	if d.BaseURL != "" {
		return strings.TrimRight(d.BaseURL, "/")
	}
	if d.Env == EnvProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

type Callback struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c Callback) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Store struct {
	Capacity int `mapstructure:"capacity"`
}

type MCP struct {
	Transport string `mapstructure:"transport"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	Payments string `mapstructure:"payments"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

func (k Kafka) Enabled() bool {
	return k.Broker.URL != ""
}

type Database struct {
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	SSLMode       string `mapstructure:"ssl-mode"`
	MigrationsDir string `mapstructure:"migrations-dir"`
}

func (d Database) Enabled() bool {
	return d.Host != ""
}

func (d Database) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Sinks struct {
	Parallelism int `mapstructure:"parallelism"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Daraja    Daraja   `mapstructure:"daraja"`
	Callback  Callback `mapstructure:"callback"`
	PublicURL string   `mapstructure:"public-url"`
	Store     Store    `mapstructure:"store"`
	MCP       MCP      `mapstructure:"mcp"`
	Kafka     Kafka    `mapstructure:"kafka"`
	Database  Database `mapstructure:"database"`
	Sinks     Sinks    `mapstructure:"sinks"`
	Metrics   Metrics  `mapstructure:"metrics"`
	Logs      Logs     `mapstructure:"logs"`
}

// CallbackURL is the address handed to the provider in every STK push.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/mpesa/callback"
}

func (c *Config) Validate() error {
	if c.Callback.Port <= 0 || c.Callback.Port > 65535 {
		return fmt.Errorf("callback.port out of range: %d", c.Callback.Port)
	}
	if c.Store.Capacity <= 0 {
		return fmt.Errorf("store.capacity must be positive")
	}
	if c.MCP.Transport != TransportStdio && c.MCP.Transport != TransportHTTP {
		return fmt.Errorf("invalid mcp.transport: %s (must be '%s' or '%s')", c.MCP.Transport, TransportStdio, TransportHTTP)
	}
	if c.Daraja.Env != EnvSandbox && c.Daraja.Env != EnvProduction {
		return fmt.Errorf("invalid daraja.env: %s (must be '%s' or '%s')", c.Daraja.Env, EnvSandbox, EnvProduction)
	}
	if c.Sinks.Parallelism <= 0 {
		return fmt.Errorf("sinks.parallelism must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("daraja.consumer-key", "")
	v.SetDefault("daraja.consumer-secret", "")
	v.SetDefault("daraja.shortcode", "")
	v.SetDefault("daraja.passkey", "")
	v.SetDefault("daraja.env", EnvSandbox)
	v.SetDefault("daraja.base-url", "")
	v.SetDefault("daraja.timeout-ms", 30_000)

	v.SetDefault("callback.host", "localhost")
	v.SetDefault("callback.port", 3000)
	v.SetDefault("public-url", "")

	v.SetDefault("store.capacity", 100)
	v.SetDefault("mcp.transport", TransportStdio)

	v.SetDefault("kafka.broker.url", "")
	v.SetDefault("kafka.topic.payments", "mpesa.payments")
	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)

	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.ssl-mode", "disable")
	v.SetDefault("database.migrations-dir", "migrations")

	v.SetDefault("sinks.parallelism", 16)

	v.SetDefault("metrics.url", "")
	v.SetDefault("metrics.interval-ms", 10_000)
	v.SetDefault("metrics.common-labels", "")

	v.SetDefault("logs.url", "")
	v.SetDefault("logs.level", "info")
}

// LoadConfig reads config.yaml from path (optional) and overlays the environment.
// Keys map to variables by upper-casing and replacing '.' and '-' with '_', so
// daraja.consumer-key is DARAJA_CONSUMER_KEY and public-url is PUBLIC_URL.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.PublicURL == "" {
		config.PublicURL = fmt.Sprintf("http://localhost:%d", config.Callback.Port)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
