package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata — непрозрачный key-value мешок. Ядро хранит и возвращает его
// как есть и никогда не ветвится по содержимому.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}
