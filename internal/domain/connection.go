package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConnectionType string

const (
	ConnectionTypeVeterinary ConnectionType = "veterinary"
	ConnectionTypeLaboratory ConnectionType = "laboratory"
	ConnectionTypeBreeding   ConnectionType = "breeding"
	ConnectionTypeBoarding   ConnectionType = "boarding"
)

// Connection — двусторонняя связь между инициатором (всегда тенант)
// и получателем: тенантом, профилем или незарегистрированным контактом.
type Connection struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	ConnectionType     ConnectionType `json:"connection_type" db:"connection_type"`
	InitiatorTenantID  string         `json:"initiator_tenant_id" db:"initiator_tenant_id"`
	RecipientTenantID  *string        `json:"recipient_tenant_id,omitempty" db:"recipient_tenant_id"`
	RecipientProfileID *string        `json:"recipient_profile_id,omitempty" db:"recipient_profile_id"`
	RecipientEmail     *string        `json:"recipient_email,omitempty" db:"recipient_email"`
	RecipientPhone     *string        `json:"recipient_phone,omitempty" db:"recipient_phone"`
	Status             Status         `json:"status" db:"status"`
	Token              string         `json:"token" db:"token"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	Metadata           Metadata       `json:"metadata,omitempty" db:"metadata"`
}

// Recipient описывает адресата запроса на связь.
// Заполняется ровно одно поле.
type Recipient struct {
	TenantID  *string `json:"tenant_id,omitempty"`
	ProfileID *string `json:"profile_id,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Validate проверяет, что адресат задан однозначно.
func (r Recipient) Validate() error {
	n := 0
	for _, v := range []*string{r.TenantID, r.ProfileID, r.Email, r.Phone} {
		if v != nil && *v != "" {
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n > 1 {
		return fmt.Errorf("%w: exactly one recipient form must be set", ErrValidation)
	}
	return nil
}

// IsInitiator проверяет, состоит ли вызывающий в тенанте-инициаторе.
func (c *Connection) IsInitiator(caller Caller) bool {
	return caller.MemberOf(c.InitiatorTenantID)
}

// IsRecipient проверяет, является ли вызывающий стороной-получателем.
func (c *Connection) IsRecipient(caller Caller) bool {
	if c.RecipientTenantID != nil && caller.MemberOf(*c.RecipientTenantID) {
		return true
	}
	if c.RecipientProfileID != nil && caller.ProfileID != "" && caller.ProfileID == *c.RecipientProfileID {
		return true
	}
	if c.RecipientEmail != nil && caller.Email != "" && caller.Email == *c.RecipientEmail {
		return true
	}
	return false
}

// IsParty: инициатор или получатель.
func (c *Connection) IsParty(caller Caller) bool {
	return c.IsInitiator(caller) || c.IsRecipient(caller)
}

// CounterpartTenantID возвращает тенант напротив указанного, если обе
// стороны связи — тенанты.
func (c *Connection) CounterpartTenantID(tenantID string) *string {
	if c.InitiatorTenantID == tenantID {
		return c.RecipientTenantID
	}
	if c.RecipientTenantID != nil && *c.RecipientTenantID == tenantID {
		id := c.InitiatorTenantID
		return &id
	}
	return nil
}
