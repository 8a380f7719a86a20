package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ResourceType string

const (
	ResourceTypeVetRecords      ResourceType = "vet_records"
	ResourceTypeLabResults      ResourceType = "lab_results"
	ResourceTypeBreedingRecords ResourceType = "breeding_records"
	ResourceTypeFiles           ResourceType = "files"
	ResourceTypeHorseProfile    ResourceType = "horse_profile"
)

type AccessLevel string

const (
	AccessLevelRead AccessLevel = "read"
)

// ConsentGrant — ограниченное разрешение, выданное стороной принятой
// Connection её контрагенту.
type ConsentGrant struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	ConnectionID    uuid.UUID      `json:"connection_id" db:"connection_id"`
	GrantorTenantID string         `json:"grantor_tenant_id" db:"grantor_tenant_id"`
	ResourceType    ResourceType   `json:"resource_type" db:"resource_type"`
	ResourceIDs     pq.StringArray `json:"resource_ids,omitempty" db:"resource_ids"`
	AccessLevel     AccessLevel    `json:"access_level" db:"access_level"`
	DateFrom        *time.Time     `json:"date_from,omitempty" db:"date_from"`
	DateTo          *time.Time     `json:"date_to,omitempty" db:"date_to"`
	ForwardOnly     bool           `json:"forward_only" db:"forward_only"`
	ExcludedFields  pq.StringArray `json:"excluded_fields,omitempty" db:"excluded_fields"`
	Status          Status         `json:"status" db:"status"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// InDateWindow проверяет дату записи против границ гранта (включительно).
func (g *ConsentGrant) InDateWindow(recordDate time.Time) bool {
	if g.DateFrom != nil && recordDate.Before(*g.DateFrom) {
		return false
	}
	if g.DateTo != nil && recordDate.After(*g.DateTo) {
		return false
	}
	return true
}

// AllowsResource проверяет id записи против allow-списка.
// Пустой список — все записи типа.
func (g *ConsentGrant) AllowsResource(resourceID string) bool {
	if len(g.ResourceIDs) == 0 {
		return true
	}
	for _, id := range g.ResourceIDs {
		if id == resourceID {
			return true
		}
	}
	return false
}
