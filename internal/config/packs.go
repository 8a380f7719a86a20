package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"stablelink/internal/domain"
)

type packConfig struct {
	Vet   bool `mapstructure:"vet"`
	Lab   bool `mapstructure:"lab"`
	Files bool `mapstructure:"files"`
}

// LoadPacks читает переопределение таблицы наборов из файла.
// Файла нет — возвращает nil, используются встроенные дефолты.
// Новый набор — правка конфига, не миграция.
func LoadPacks(path string) (map[string]domain.ShareScope, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read packs config from %s: %w", path, err)
	}

	var raw map[string]packConfig
	if err := v.UnmarshalKey("packs", &raw); err != nil {
		return nil, fmt.Errorf("cannot unmarshal packs config: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	packs := make(map[string]domain.ShareScope, len(raw))
	for key, pc := range raw {
		packs[key] = domain.ShareScope{
			IncludeVet:   pc.Vet,
			IncludeLab:   pc.Lab,
			IncludeFiles: pc.Files,
		}
	}
	return packs, nil
}
