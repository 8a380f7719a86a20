package domain

import "time"

// ResourceRecord — непрозрачная доменная запись (вет-запись, результат
// анализа, файл, профиль лошади). Ядро фильтрует такие записи,
// но не интерпретирует их содержимое.
type ResourceRecord struct {
	ID            string       `json:"id" db:"id"`
	ResourceType  ResourceType `json:"resource_type" db:"resource_type"`
	OwnerTenantID string       `json:"owner_tenant_id" db:"owner_tenant_id"`
	RecordDate    time.Time    `json:"record_date" db:"record_date"`
	Fields        Metadata     `json:"fields" db:"fields"`
}

// Redact возвращает копию записи без перечисленных полей.
func (r ResourceRecord) Redact(excluded []string) ResourceRecord {
	if len(excluded) == 0 || len(r.Fields) == 0 {
		return r
	}
	fields := make(Metadata, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	for _, name := range excluded {
		delete(fields, name)
	}
	r.Fields = fields
	return r
}
