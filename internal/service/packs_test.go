package service

import (
	"errors"
	"testing"

	"stablelink/internal/domain"
)

func TestPackTableResolve(t *testing.T) {
	table := DefaultPacks()

	tests := []struct {
		name     string
		packKey  string
		override *domain.ShareScope
		want     domain.ShareScope
		wantErr  error
	}{
		{
			name:    "medical_summary",
			packKey: "medical_summary",
			want:    domain.ShareScope{IncludeVet: true, IncludeLab: true},
		},
		{
			name:    "full_history",
			packKey: "full_history",
			want:    domain.ShareScope{IncludeVet: true, IncludeLab: true, IncludeFiles: true},
		},
		{
			name:    "sale_dossier",
			packKey: "sale_dossier",
			want:    domain.ShareScope{IncludeVet: true, IncludeFiles: true},
		},
		{
			name:     "явный override поверх набора",
			packKey:  "medical_summary",
			override: &domain.ShareScope{IncludeLab: true},
			want:     domain.ShareScope{IncludeLab: true},
		},
		{
			name:     "custom со scope",
			packKey:  "custom",
			override: &domain.ShareScope{IncludeFiles: true},
			want:     domain.ShareScope{IncludeFiles: true},
		},
		{
			name:    "custom без scope",
			packKey: "custom",
			wantErr: domain.ErrValidation,
		},
		{
			name:    "неизвестный набор",
			packKey: "quarantine_report",
			wantErr: domain.ErrValidation,
		},
		{
			name:    "пустой ключ",
			packKey: "",
			wantErr: domain.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := table.Resolve(tc.packKey, tc.override)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tc.want {
				t.Errorf("scope = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestPackTableKeys(t *testing.T) {
	keys := DefaultPacks().Keys()

	want := map[string]bool{
		"medical_summary": false,
		"full_history":    false,
		"sale_dossier":    false,
		"custom":          false,
	}
	for _, k := range keys {
		if _, ok := want[k]; !ok {
			t.Errorf("unexpected pack key %q", k)
			continue
		}
		want[k] = true
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("pack key %q missing", k)
		}
	}
}

// Конфиг переопределяет таблицу целиком, не дополняет дефолты.
func TestPackTableFromConfig(t *testing.T) {
	table := NewPackTable(map[string]domain.ShareScope{
		"insurance_claim": {IncludeVet: true},
	})

	if _, err := table.Resolve("medical_summary", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("default pack after override: err = %v, want ErrValidation", err)
	}
	scope, err := table.Resolve("insurance_claim", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !scope.IncludeVet || scope.IncludeLab || scope.IncludeFiles {
		t.Errorf("scope = %+v, want vet only", scope)
	}
}
