package domain

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
	StatusActive   Status = "active"
)

// IsTerminal сообщает, является ли статус конечным.
// Из конечного статуса переходов нет.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusRevoked, StatusExpired:
		return true
	default:
		return false
	}
}

// PastExpiry проверяет срок действия по серверному времени.
// Время клиента никогда не используется.
func PastExpiry(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.Before(now)
}
