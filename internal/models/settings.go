package models

import "time"

// Default config keys for the single-row settings tables
const (
	DefaultCorsConfigKey      = "default"
	DefaultRatelimitConfigKey = "default"
)

// CorsConfig is the persisted CORS policy read by the server's CORS reloader
type CorsConfig struct {
	ConfigKey string `json:"config_key" yaml:"config_key"`
	// AllowedOrigins is comma-separated
	AllowedOrigins   string    `json:"allowed_origins" yaml:"allowed_origins"`
	AllowCredentials bool      `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int       `json:"max_age" yaml:"max_age"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

// RatelimitConfig is the persisted request rate in ulule/limiter form (e.g. "5-S", "100-M")
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key" yaml:"config_key"`
	Rate      string    `json:"rate" yaml:"rate"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
