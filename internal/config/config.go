package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the service reads at startup. Values come from
// a .env file when present, with environment variables taking precedence.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`

	GoogleMapsKey string `mapstructure:"GOOGLE_MAPS_KEY"`

	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaEventTopic string `mapstructure:"KAFKA_EVENT_TOPIC"`

	SESRegion    string `mapstructure:"SES_REGION"`
	SESFromEmail string `mapstructure:"SES_FROM_EMAIL"`

	WebhookForwardURL string `mapstructure:"WEBHOOK_FORWARD_URL"`

	// Dispatch and navigation tunables. The defaults mirror the values the
	// mobile clients shipped with, but none of them are load-bearing.
	AssignmentWindowMinutes int           `mapstructure:"ASSIGNMENT_WINDOW_MINUTES"`
	StepAdvanceMeters       float64       `mapstructure:"STEP_ADVANCE_METERS"`
	OffRouteCorridorMeters  float64       `mapstructure:"OFF_ROUTE_CORRIDOR_METERS"`
	MaxReroutes             int           `mapstructure:"MAX_REROUTES"`
	LocationPollInterval    time.Duration `mapstructure:"LOCATION_POLL_INTERVAL"`
}

// LoadConfig reads configuration from the given directory's .env file and
// the process environment.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("KAFKA_EVENT_TOPIC", "order-status-events")
	viper.SetDefault("ASSIGNMENT_WINDOW_MINUTES", 30)
	viper.SetDefault("STEP_ADVANCE_METERS", 50.0)
	viper.SetDefault("OFF_ROUTE_CORRIDOR_METERS", 100.0)
	viper.SetDefault("MAX_REROUTES", 3)
	viper.SetDefault("LOCATION_POLL_INTERVAL", 5*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		// A missing .env is fine; everything can come from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
