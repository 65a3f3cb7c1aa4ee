package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	// Server
	Port string `envconfig:"PORT" default:"8098"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"sshconsole_db"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Auth (single admin user)
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
