package domain

import (
	"time"

	"github.com/google/uuid"
)

// ShareScope — какие категории записей включены в публичную ссылку.
type ShareScope struct {
	IncludeVet   bool `json:"include_vet" db:"include_vet"`
	IncludeLab   bool `json:"include_lab" db:"include_lab"`
	IncludeFiles bool `json:"include_files" db:"include_files"`
}

// Share — самостоятельная публичная ссылка на один ресурс (лошадь),
// не требующая Connection. Аутентификация — предъявлением токена.
type Share struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	OwnerTenantID     string     `json:"owner_tenant_id" db:"owner_tenant_id"`
	SubjectResourceID string     `json:"subject_resource_id" db:"subject_resource_id"`
	Token             string     `json:"token" db:"token"`
	PackKey           string     `json:"pack_key" db:"pack_key"`
	IncludeVet        bool       `json:"include_vet" db:"include_vet"`
	IncludeLab        bool       `json:"include_lab" db:"include_lab"`
	IncludeFiles      bool       `json:"include_files" db:"include_files"`
	RecipientEmail    *string    `json:"recipient_email,omitempty" db:"recipient_email"`
	DateFrom          *time.Time `json:"date_from,omitempty" db:"date_from"`
	DateTo            *time.Time `json:"date_to,omitempty" db:"date_to"`
	Status            Status     `json:"status" db:"status"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

func (s *Share) Scope() ShareScope {
	return ShareScope{
		IncludeVet:   s.IncludeVet,
		IncludeLab:   s.IncludeLab,
		IncludeFiles: s.IncludeFiles,
	}
}

// IsActive — вычисляемый статус: активен и срок не истек.
// Истечение не хранится, а выводится при чтении.
func (s *Share) IsActive(now time.Time) bool {
	return s.Status == StatusActive && !PastExpiry(s.ExpiresAt, now)
}

// InDateWindow проверяет дату записи против границ ссылки (включительно).
func (s *Share) InDateWindow(recordDate time.Time) bool {
	if s.DateFrom != nil && recordDate.Before(*s.DateFrom) {
		return false
	}
	if s.DateTo != nil && recordDate.After(*s.DateTo) {
		return false
	}
	return true
}
