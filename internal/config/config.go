package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Booking subsystem (external collaborator).
	BookingServiceURL string `env:"BOOKING_SERVICE_URL" envDefault:"http://bookings:8082"`

	// Notification sink. Empty disables Redis and falls back to log-only
	// delivery.
	RedisAddr         string `env:"REDIS_ADDR"`
	NotificationQueue string `env:"NOTIFICATION_QUEUE" envDefault:"agent:notifications"`
	NotifyTimeoutS    int    `env:"NOTIFY_TIMEOUT_S" envDefault:"5"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
