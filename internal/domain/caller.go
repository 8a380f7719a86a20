package domain

// Caller — явная личность вызывающего. Передается параметром в каждую
// операцию ядра; глобального "текущего пользователя" в ядре нет.
type Caller struct {
	UserID    string   `json:"user_id"`
	ProfileID string   `json:"profile_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	TenantIDs []string `json:"tenant_ids,omitempty"`
}

// MemberOf проверяет членство вызывающего в тенанте.
func (c Caller) MemberOf(tenantID string) bool {
	for _, id := range c.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}
