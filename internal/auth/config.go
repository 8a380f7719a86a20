package auth

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Secret string `mapstructure:"AUTH_SECRET"`
	Issuer string `mapstructure:"AUTH_ISSUER"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.Secret == "" {
		cfg.Secret = v.GetString("AUTH_SECRET")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = v.GetString("AUTH_ISSUER")
	}

	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth configuration is incomplete: AUTH_SECRET is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "stablelink-gateway"
	}

	return &cfg, nil
}
