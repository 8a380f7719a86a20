package service

import (
	"fmt"

	"stablelink/internal/domain"
)

// PackKeyCustom требует явных флагов scope при создании ссылки.
const PackKeyCustom = "custom"

// PackTable — статическая таблица именованных наборов scope-флагов.
// Заполняется при старте (дефолты плюс конфиг), без миграций на каждый
// новый набор.
type PackTable struct {
	packs map[string]domain.ShareScope
}

// DefaultPacks возвращает встроенные наборы.
func DefaultPacks() *PackTable {
	return NewPackTable(map[string]domain.ShareScope{
		"medical_summary": {IncludeVet: true, IncludeLab: true},
		"full_history":    {IncludeVet: true, IncludeLab: true, IncludeFiles: true},
		"sale_dossier":    {IncludeVet: true, IncludeFiles: true},
	})
}

func NewPackTable(packs map[string]domain.ShareScope) *PackTable {
	copied := make(map[string]domain.ShareScope, len(packs))
	for k, v := range packs {
		copied[k] = v
	}
	return &PackTable{packs: copied}
}

// Resolve возвращает scope для набора. Явный override имеет приоритет
// над дефолтами набора; для "custom" он обязателен.
func (t *PackTable) Resolve(packKey string, override *domain.ShareScope) (domain.ShareScope, error) {
	if packKey == PackKeyCustom {
		if override == nil {
			return domain.ShareScope{}, fmt.Errorf("%w: custom pack requires explicit scope", domain.ErrValidation)
		}
		return *override, nil
	}
	scope, ok := t.packs[packKey]
	if !ok {
		return domain.ShareScope{}, fmt.Errorf("%w: unknown pack %q", domain.ErrValidation, packKey)
	}
	if override != nil {
		return *override, nil
	}
	return scope, nil
}

// Keys перечисляет известные наборы (для UI).
func (t *PackTable) Keys() []string {
	keys := make([]string, 0, len(t.packs)+1)
	for k := range t.packs {
		keys = append(keys, k)
	}
	keys = append(keys, PackKeyCustom)
	return keys
}
