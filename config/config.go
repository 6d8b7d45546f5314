package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	TransportSocketIO = "socketio"
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendTerminal = "terminal"
)

type Config struct {
	AppEnv             string   `yaml:"app_env"`
	ChannelTransport   string   `yaml:"channel_transport"`
	ChannelURL         string   `yaml:"channel_url"`
	ChannelNamespace   string   `yaml:"channel_namespace"`
	ChannelTokenSecret string   `yaml:"channel_token_secret"`
	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaTopic         string   `yaml:"kafka_topic"`
	KafkaGroupID       string   `yaml:"kafka_group_id"`
	RedisURLs          []string `yaml:"redis_urls"`
	RedisPass          string   `yaml:"redis_pass"`
	DisplayBackend     string   `yaml:"display_backend"`
	DisplayName        string   `yaml:"display_name"`
	TemperatureFile    string   `yaml:"temperature_file"`
	MongoURI           string   `yaml:"mongo_uri"`
	MongoUser          string   `yaml:"mongo_user"`
	MongoPassword      string   `yaml:"mongo_password"`
	DBName             string   `yaml:"db_name"`
	ServerPort         string   `yaml:"server_port"`
	PrometheusPort     string   `yaml:"prometheus_port"`
	APIJWTSecret       string   `yaml:"api_jwt_secret"`
	LogLevel           string   `yaml:"log_level"`
	LogPretty          bool     `yaml:"log_pretty"`
}

// LoadConfig reads .env and the environment, then overlays the YAML file
// named by CONFIG_FILE when set.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Debug().Msg("no .env file, using environment variables directly")
	}

	cfg := &Config{
		AppEnv:             strings.ToLower(getEnv("APP_ENV", EnvProduction)),
		ChannelTransport:   strings.ToLower(getEnv("CHANNEL_TRANSPORT", TransportSocketIO)),
		ChannelURL:         getEnv("CHANNEL_URL", "ws://localhost:80"),
		ChannelNamespace:   getEnv("CHANNEL_NAMESPACE", "/control"),
		ChannelTokenSecret: getEnv("CHANNEL_TOKEN_SECRET", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "control-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "display"),
		RedisURLs:          splitList(getEnv("REDIS_URL", "localhost:6379")),
		RedisPass:          getEnv("REDIS_PASS", ""),
		DisplayBackend:     strings.ToLower(getEnv("DISPLAY_BACKEND", BackendMemory)),
		DisplayName:        getEnv("DISPLAY_NAME", "control"),
		TemperatureFile:    getEnv("TEMPERATURE_FILE", ""),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoUser:          getEnv("MONGO_USER", ""),
		MongoPassword:      getEnv("MONGO_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "waterheater"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		PrometheusPort:     getEnv("PROMETHEUS_PORT", "9090"),
		APIJWTSecret:       getEnv("API_JWT_SECRET", ""),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:          getEnvBool("LOG_PRETTY", false),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile replaces every field the YAML file sets.
func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unsupported APP_ENV %q", c.AppEnv)
	}
	if !strings.HasPrefix(c.ChannelNamespace, "/") {
		return fmt.Errorf("CHANNEL_NAMESPACE must start with '/', got %q", c.ChannelNamespace)
	}
	switch c.ChannelTransport {
	case TransportSocketIO:
		if c.ChannelURL == "" {
			return errors.New("CHANNEL_URL is required for socketio transport")
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for kafka transport")
		}
	case TransportRedis:
		if len(c.RedisURLs) == 0 {
			return errors.New("REDIS_URL is required for redis transport")
		}
	default:
		return fmt.Errorf("unsupported CHANNEL_TRANSPORT %q", c.ChannelTransport)
	}
	switch c.DisplayBackend {
	case BackendMemory, BackendTerminal:
	case BackendRedis:
		if len(c.RedisURLs) == 0 {
			return errors.New("REDIS_URL is required for redis display backend")
		}
	default:
		return fmt.Errorf("unsupported DISPLAY_BACKEND %q", c.DisplayBackend)
	}
	if c.ServerPort == "" {
		return errors.New("SERVER_PORT is required")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.ChannelTransport == TransportRedis || c.DisplayBackend == BackendRedis
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
