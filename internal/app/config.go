package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relaydesk/relaydesk-backend/internal/platform/envutil"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

type Config struct {
	LogMode      string   `yaml:"log_mode"`
	Port         string   `yaml:"port"`
	Environment  string   `yaml:"environment"`
	JWTSecret    string   `yaml:"jwt_secret"`
	AllowOrigins []string `yaml:"allow_origins"`
	RedisAddr    string   `yaml:"redis_addr"`
	RedisChannel string   `yaml:"redis_channel"`
	AMQPURL      string   `yaml:"amqp_url"`
	AMQPExchange string   `yaml:"amqp_exchange"`
}

// LoadConfig layers defaults, an optional YAML file (CONFIG_FILE), and
// environment variables, with env winning.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		LogMode:      "development",
		Port:         "8080",
		Environment:  "development",
		RedisChannel: "routing-events",
		AMQPExchange: "relaydesk.events",
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		log.Info("config file loaded", "path", path)
	}

	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.Environment = envutil.String("ENVIRONMENT", cfg.Environment)
	cfg.JWTSecret = envutil.String("JWT_SECRET_KEY", cfg.JWTSecret)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.AMQPURL = envutil.String("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = envutil.String("AMQP_EXCHANGE", cfg.AMQPExchange)
	if origins := envutil.String("ALLOW_ORIGINS", ""); origins != "" {
		cfg.AllowOrigins = splitTrim(origins)
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return cfg, nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
